package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"syscall"
	"time"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	sboxconfig "github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/config"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/dispatch"
	sboxgrpc "github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/grpc"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/httpapi"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
	sboxmqtt "github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/mqtt"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/store"
)

var (
	openStoreFunc        = openStore
	setupMQTTFunc        = setupMQTT
	connectMQTTFunc      = connectMQTTWithRetry
	waitForShutdownFunc  = waitForShutdown
	newMetricsServerFunc = func(addr string, ready metrics.ReadinessFunc) metricsServer {
		return metrics.NewServer(addr, metrics.WithReadiness(ready))
	}
	newAPIServerFunc = func(config sboxconfig.Config, analyzer httpapi.Analyzer, reports store.Store, ready func() error) (apiServer, error) {
		server, err := httpapi.NewServer(config.HTTP.Bind, analyzer,
			httpapi.WithStore(reports),
			httpapi.WithReadiness(ready),
			httpapi.WithMaxBodyBytes(int64(config.Analysis.MaxBodyBytes)),
			httpapi.WithRateLimit(config.HTTP.RateLimitRPS, config.HTTP.RateLimitBurst),
			httpapi.WithRetryAfter(config.HTTP.RetryAfterSec),
			httpapi.WithAllowPublic(config.HTTP.AllowPublic),
		)
		if err != nil {
			return nil, err
		}
		return server, nil
	}
	newGRPCServerFunc = func(service analysis.Service, reports store.Store) (grpcServer, error) {
		server, err := sboxgrpc.NewServer(service, sboxgrpc.WithStore(reports))
		if err != nil {
			return nil, err
		}
		return server, nil
	}
	newMQTTClient = func(cfg sboxmqtt.Config, handler sboxmqtt.Handler) (mqttClient, error) {
		client, err := sboxmqtt.NewClient(cfg, handler)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
)

type apiServer interface {
	Start() error
	StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error
	Shutdown(context.Context) error
}

type metricsServer interface {
	Start() error
	StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error
	Shutdown(context.Context) error
}

type grpcServer interface {
	Start(addr string) error
	StartTLS(addr, certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error
	Stop(context.Context)
}

type mqttClient interface {
	Connect() error
	Publish(topic string, payload []byte) error
	Close()
}

// jobQueue is the part of the dispatcher the shutdown sequence needs.
type jobQueue interface {
	Close()
}

// reportStore bundles the configured store with its readiness probe and
// release hook.
type reportStore struct {
	store.Store
	ready func() error
	close func()
}

// openStore selects Postgres when a DSN is configured and the bounded
// in-memory store otherwise.
func openStore(ctx context.Context, cfg sboxconfig.Store) (reportStore, error) {
	if cfg.PostgresDSN == "" {
		log.Printf("store: in-memory (capacity=%d)", cfg.MemoryCapacity)
		return reportStore{
			Store: store.NewMemoryStore(cfg.MemoryCapacity),
			ready: func() error { return nil },
			close: func() {},
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := store.OpenPostgres(connectCtx, cfg.PostgresDSN)
	if err != nil {
		return reportStore{}, err
	}
	log.Println("store: postgres connected")

	return reportStore{
		Store: pg,
		ready: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pg.Ping(pingCtx)
		},
		close: pg.Close,
	}, nil
}

// serve runs the long-lived service until SIGINT or SIGTERM.
func serve(config sboxconfig.Config, stderr io.Writer) int {
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	analyzer, err := newAnalyzer(config.Analysis)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	reports, err := openStoreFunc(rootCtx, config.Store)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer reports.close()

	var metricsHTTPServer metricsServer
	if config.Metrics.Enabled {
		metricsHTTPServer = newMetricsServerFunc(config.Metrics.Bind, reports.ready)
		go func() {
			var err error
			if config.Metrics.TLSEnabled {
				clientAuth := parseClientAuth(config.Metrics.TLSClientAuth)
				err = metricsHTTPServer.StartTLS(
					config.Metrics.TLSCertFile,
					config.Metrics.TLSKeyFile,
					config.Metrics.TLSCAFile,
					clientAuth,
				)
			} else {
				err = metricsHTTPServer.Start()
			}
			if err != nil {
				logFatalfFunc("metrics: failed to start server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsHTTPServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("metrics: shutdown error: %v", err)
			}
		}()
	}

	var api apiServer
	if config.HTTP.Enabled {
		api, err = newAPIServerFunc(config, analyzer, reports.Store, reports.ready)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "start analysis http server: %v\n", err)
			return 1
		}
		if config.HTTP.TLSEnabled {
			err = api.StartTLS(
				config.HTTP.TLSCertFile,
				config.HTTP.TLSKeyFile,
				config.HTTP.TLSCAFile,
				parseClientAuth(config.HTTP.TLSClientAuth),
			)
		} else {
			err = api.Start()
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "start analysis http server: %v\n", err)
			return 1
		}
		defer func() {
			if err := api.Shutdown(context.Background()); err != nil {
				log.Printf("httpapi: shutdown error: %v", err)
			}
		}()
	}

	var rpc grpcServer
	if config.GRPC.Enabled {
		rpc, err = newGRPCServerFunc(analyzer, reports.Store)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "start grpc server: %v\n", err)
			return 1
		}
		if config.GRPC.TLSEnabled {
			err = rpc.StartTLS(
				config.GRPC.Bind,
				config.GRPC.TLSCertFile,
				config.GRPC.TLSKeyFile,
				config.GRPC.TLSCAFile,
				parseClientAuth(config.GRPC.TLSClientAuth),
			)
		} else {
			err = rpc.Start(config.GRPC.Bind)
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "start grpc server: %v\n", err)
			return 1
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			rpc.Stop(stopCtx)
		}()
	}

	var (
		queue  jobQueue
		client mqttClient
	)
	if config.MQTT.Enabled {
		sink := &sboxmqtt.ResultPublisher{}
		dispatcher := dispatch.New(analyzer, sink,
			dispatch.WithQueueSize(config.Analysis.QueueSize),
			dispatch.WithStore(reports.Store),
		)
		queue = dispatcher
		defer dispatcher.Close()

		client, err = connectMQTTFunc(rootCtx, config, dispatcher, sink)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		defer client.Close()
	}

	log.Println("sbox-analyzer: ready")
	waitForShutdownFunc(client, queue, api, rpc, metricsHTTPServer)

	return 0
}

// setupMQTT creates and connects the MQTT client. Requests are queued on
// submitter and results leave through sink, which publishes on the same
// client.
func setupMQTT(config sboxconfig.Config, submitter sboxmqtt.Submitter, sink *sboxmqtt.ResultPublisher) (mqttClient, error) {
	handler := &sboxmqtt.RxHandler{
		Submitter:   submitter,
		ResultTopic: config.MQTT.ResultTopic,
	}

	client, err := newMQTTClient(sboxmqtt.Config{
		BrokerURL:   config.MQTT.BrokerURL,
		ClientID:    config.MQTT.ClientID,
		Topics:      config.MQTT.Topics,
		ResultTopic: config.MQTT.ResultTopic,
		QoS:         config.MQTT.QoS,
		Username:    config.MQTT.Username,
		Password:    config.MQTT.Password,
		TLSCAFile:   config.MQTT.TLSCAFile,
	}, handler)
	if err != nil {
		return nil, fmt.Errorf("mqtt init: %w", err)
	}
	handler.Publisher = client
	if sink != nil {
		sink.Publisher = client
	}

	if err := client.Connect(); err != nil {
		client.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	log.Printf("mqtt: connected -> %s, subscribed -> %v (QoS=%d)",
		config.MQTT.BrokerURL, config.MQTT.Topics, config.MQTT.QoS)

	return client, nil
}

// connectMQTTWithRetry repeatedly invokes setupMQTTFunc until a connection is
// established or ctx ends. It applies exponential back-off with bounded
// jitter so multiple instances do not retry in lockstep during broker outages.
func connectMQTTWithRetry(ctx context.Context, config sboxconfig.Config, submitter sboxmqtt.Submitter, sink *sboxmqtt.ResultPublisher) (mqttClient, error) {
	const (
		initialDelay   = 1 * time.Second
		maxDelay       = 30 * time.Second
		jitterFraction = 0.2
	)

	delay := initialDelay
	attempt := 0
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		attempt++
		client, err := setupMQTTFunc(config, submitter, sink)
		if err == nil {
			if attempt > 1 {
				log.Printf("mqtt: connected after %d attempt(s)", attempt)
			}
			return client, nil
		}

		wait := delay
		if jitterFraction > 0 {
			jitter := 1 + (rng.Float64()*2-1)*jitterFraction
			wait = time.Duration(float64(delay) * jitter)
			if wait < 0 {
				wait = 0
			}
		}

		log.Printf("mqtt: connect attempt %d failed: %v (retrying in %s)", attempt, err, wait)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("mqtt: giving up after %d attempt(s): %w", attempt, ctx.Err())
		case <-time.After(wait):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM is received, then tears down
// subsystems in order: MQTT, dispatcher, HTTP API, gRPC, metrics server.
func waitForShutdown(client mqttClient, queue jobQueue, api apiServer, rpc grpcServer, metricsHTTPServer metricsServer) {
	sig := make(chan os.Signal, 1)
	signalNotifyFunc(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("shutting down gracefully...")

	if client != nil {
		client.Close()
	}

	if queue != nil {
		queue.Close()
	}

	if api != nil {
		shutdownContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := api.Shutdown(shutdownContext); err != nil {
			log.Printf("httpapi: shutdown error: %v", err)
		}
	}

	if rpc != nil {
		stopContext, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rpc.Stop(stopContext)
	}

	if metricsHTTPServer != nil {
		shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsHTTPServer.Shutdown(shutdownContext); err != nil {
			log.Printf("metrics http server: shutdown error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
