package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	sboxconfig "github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/config"
	sboxgrpc "github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/grpc"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/report"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/tableio"
)

var (
	loadConfigFunc   = loadConfig
	configLoadFunc   = sboxconfig.Load
	serveFunc        = serve
	newRemoteFunc    = newRemote
	signalNotifyFunc = signal.Notify
	logFatalfFunc    = log.Fatalf
)

// remoteService is an analysis.Service backed by a connection that must be
// released.
type remoteService interface {
	analysis.Service
	Close() error
}

func newRemote(ctx context.Context, cfg sboxconfig.Remote) (remoteService, error) {
	return sboxgrpc.NewClient(ctx, cfg)
}

// options holds the parsed command line.
type options struct {
	input   string
	format  string
	metrics string
	output  string
	xlsx    string
	remote  string
	workers int
}

// parseClientAuth maps a configuration string to the corresponding
// tls.ClientAuthType. Unrecognised values default to tls.NoClientCert.
func parseClientAuth(mode string) tls.ClientAuthType {
	switch mode {
	case "require":
		return tls.RequireAndVerifyClientCert
	case "request":
		return tls.RequestClientCert
	default:
		return tls.NoClientCert
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if err := godotenv.Overload(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("dotenv: %v", err)
	}

	var opts options
	fs := flag.NewFlagSet("sbox-analyzer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.input, "input", "", "S-box table to analyse (csv, txt, json or xlsx); omit to run the service")
	fs.StringVar(&opts.format, "format", "", "input format; inferred from the file extension when empty")
	fs.StringVar(&opts.metrics, "metrics", "", "comma-separated metrics or \"all\"; the configured defaults when empty")
	fs.StringVar(&opts.output, "output", string(report.FormatText), "report format: text, json or yaml")
	fs.StringVar(&opts.xlsx, "xlsx", "", "also write the report workbook to this path")
	fs.StringVar(&opts.remote, "remote", "", "analyse on the gRPC analyzer at this address")
	fs.IntVar(&opts.workers, "workers", 0, "goroutines per metric scan; 0 means GOMAXPROCS")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stdout, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.Usage()
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "parse flags: %v\n", err)
		return 2
	}

	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return 2
	}

	if opts.workers < 0 {
		_, _ = fmt.Fprintf(stderr, "invalid -workers %d: must not be negative\n", opts.workers)
		return 2
	}

	config, err := loadConfigFunc()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if opts.workers > 0 {
		config.Analysis.Workers = opts.workers
	}

	if opts.input == "" {
		return serveFunc(config, stderr)
	}
	return analyzeOnce(opts, config, stdout, stderr)
}

// loadConfig loads the analyzer configuration from environment variables and
// the optional .env file.
func loadConfig() (sboxconfig.Config, error) {
	config, err := configLoadFunc()
	if err != nil {
		return config, fmt.Errorf("config: %w", err)
	}

	log.Printf("environment: %s", config.Environment)
	return config, nil
}

// newAnalyzer builds the local engine from the analysis configuration.
func newAnalyzer(cfg sboxconfig.Analysis) (*analysis.Analyzer, error) {
	defaults, err := analysis.ParseMetrics(cfg.DefaultMetrics)
	if err != nil {
		return nil, fmt.Errorf("default metrics: %w", err)
	}
	return analysis.New(
		analysis.WithWorkers(cfg.Workers),
		analysis.WithDefaultMetrics(defaults),
		analysis.WithTimeout(cfg.Timeout),
	), nil
}

// analyzeOnce reads one table, analyses it and prints the report.
func analyzeOnce(opts options, config sboxconfig.Config, stdout, stderr io.Writer) int {
	selected, err := analysis.ParseMetrics([]string{opts.metrics})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid -metrics: %v\n", err)
		return 2
	}

	output, err := report.ParseFormat(opts.output)
	if err != nil || output == report.FormatXLSX {
		_, _ = fmt.Fprintf(stderr, "invalid -output %q: want text, json or yaml\n", opts.output)
		return 2
	}

	raw, err := readTable(opts.input, opts.format)
	if err != nil {
		if errors.Is(err, tableio.ErrUnsupportedFormat) {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var service analysis.Service
	if opts.remote != "" {
		remoteConfig := config.Remote
		remoteConfig.ServerAddr = opts.remote
		client, err := newRemoteFunc(ctx, remoteConfig)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "connect %s: %v\n", opts.remote, err)
			return 1
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Printf("grpc: close client: %v", err)
			}
		}()
		service = client
	} else {
		analyzer, err := newAnalyzer(config.Analysis)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		service = analyzer
	}

	result, err := service.Analyze(ctx, raw, selected)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "analyze: %v\n", err)
		return 1
	}

	if err := report.Write(stdout, result, output); err != nil {
		_, _ = fmt.Fprintf(stderr, "write report: %v\n", err)
		return 1
	}

	if opts.xlsx != "" {
		if err := writeWorkbookFile(opts.xlsx, result); err != nil {
			_, _ = fmt.Fprintf(stderr, "write workbook: %v\n", err)
			return 1
		}
		log.Printf("report: workbook written to %s", opts.xlsx)
	}
	return 0
}

func readTable(path, format string) ([]int, error) {
	if format == "" {
		return tableio.ReadFile(path)
	}
	parsed, err := tableio.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tableio.Parse(f, parsed)
}

func writeWorkbookFile(path string, r analysis.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return report.WriteWorkbook(f, r)
}
