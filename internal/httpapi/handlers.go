package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/clock"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/report"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/store"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/tableio"
)

// analyzeRequest is the JSON body of /analyze and the first WebSocket
// message of /analyze/stream.
type analyzeRequest struct {
	Table   []int    `json:"table"`
	Metrics []string `json:"metrics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("httpapi: response does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return hijacker.Hijack()
}

// instrument records request count and latency for endpoint.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(response http.ResponseWriter, request *http.Request) {
		start := s.clock.Now()
		sw := &statusWriter{ResponseWriter: response}
		next(sw, request)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(endpoint, status, clock.Since(s.clock, start))
		if status == http.StatusServiceUnavailable {
			metrics.RecordHTTP503()
		}
	}
}

// allow applies the rate limiter, writing a 503 with Retry-After when the
// bucket is empty.
func (s *Server) allow(response http.ResponseWriter) bool {
	if s.rateLimiter == nil {
		return true
	}
	allowed, wait := s.rateLimiter.Allow()
	if allowed {
		return true
	}
	metrics.RecordHTTPRateLimited()
	setNoStoreHeaders(response)
	s.setRetryAfter(response, wait)
	writeError(response, http.StatusServiceUnavailable, "rate limit exceeded")
	return false
}

func (s *Server) handleAnalyze(response http.ResponseWriter, request *http.Request) {
	if !s.allow(response) {
		return
	}

	var body analyzeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(response, request.Body, s.maxBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		writeError(response, decodeStatus(err), fmt.Sprintf("invalid request body: %v", err))
		return
	}

	selected, err := analysis.ParseMetrics(body.Metrics)
	if err != nil {
		writeError(response, http.StatusBadRequest, err.Error())
		return
	}

	r, err := s.run(request.Context(), body.Table, selected)
	if err != nil {
		writeError(response, statusFor(err), err.Error())
		return
	}
	writeReport(response, r, report.FormatJSON)
}

func (s *Server) handleUpload(response http.ResponseWriter, request *http.Request) {
	if !s.allow(response) {
		return
	}

	query := request.URL.Query()
	inputFormat := tableio.FormatCSV
	if name := query.Get("format"); name != "" {
		parsed, err := tableio.ParseFormat(name)
		if err != nil {
			writeError(response, http.StatusBadRequest, err.Error())
			return
		}
		inputFormat = parsed
	}

	outputFormat := report.FormatJSON
	if name := query.Get("output"); name != "" {
		parsed, err := report.ParseFormat(name)
		if err != nil {
			writeError(response, http.StatusBadRequest, err.Error())
			return
		}
		outputFormat = parsed
	}

	var selected []analysis.Metric
	if list := query.Get("metrics"); list != "" {
		parsed, err := analysis.ParseMetrics([]string{list})
		if err != nil {
			writeError(response, http.StatusBadRequest, err.Error())
			return
		}
		selected = parsed
	}

	body, err := io.ReadAll(http.MaxBytesReader(response, request.Body, s.maxBodyBytes))
	if err != nil {
		writeError(response, decodeStatus(err), fmt.Sprintf("read body: %v", err))
		return
	}

	raw, err := tableio.Parse(bytes.NewReader(body), inputFormat)
	if err != nil {
		writeError(response, statusFor(err), err.Error())
		return
	}

	r, err := s.run(request.Context(), raw, selected)
	if err != nil {
		writeError(response, statusFor(err), err.Error())
		return
	}
	writeReport(response, r, outputFormat)
}

func (s *Server) handleReport(response http.ResponseWriter, request *http.Request) {
	if s.store == nil {
		writeError(response, http.StatusNotFound, "report storage disabled")
		return
	}

	r, err := s.store.Get(request.Context(), request.PathValue("id"))
	if err != nil {
		writeError(response, statusFor(err), err.Error())
		return
	}

	outputFormat := report.FormatJSON
	if name := request.URL.Query().Get("output"); name != "" {
		parsed, err := report.ParseFormat(name)
		if err != nil {
			writeError(response, http.StatusBadRequest, err.Error())
			return
		}
		outputFormat = parsed
	}
	writeReport(response, r, outputFormat)
}

func (s *Server) handleHealth(response http.ResponseWriter, _ *http.Request) {
	setNoStoreHeaders(response)
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(response, "OK")
}

func (s *Server) handleReady(response http.ResponseWriter, _ *http.Request) {
	setNoStoreHeaders(response)
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.readiness != nil {
		if err := s.readiness(); err != nil {
			response.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(response, "ready=false\n%v\n", err)
			return
		}
	}
	response.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(response, "ready=true")
}

// run analyses raw and stores the report when a store is configured.
func (s *Server) run(ctx context.Context, raw []int, selected []analysis.Metric) (analysis.Report, error) {
	r, err := s.analyzer.Analyze(ctx, raw, selected)
	if err != nil {
		return analysis.Report{}, err
	}
	s.save(ctx, r)
	return r, nil
}

func (s *Server) save(ctx context.Context, r analysis.Report) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, r); err != nil {
		log.Printf("httpapi: failed to store report %s: %v", r.ID, err)
	}
}

func writeReport(response http.ResponseWriter, r analysis.Report, format report.Format) {
	var buf bytes.Buffer
	if err := report.Write(&buf, r, format); err != nil {
		log.Printf("httpapi: render report %s: %v", r.ID, err)
		writeError(response, http.StatusInternalServerError, "failed to render report")
		return
	}

	setNoStoreHeaders(response)
	response.Header().Set("Content-Type", report.ContentType(format))
	response.Header().Set("X-Report-ID", r.ID)
	if format == report.FormatXLSX {
		response.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.WorkbookFilename))
	}
	response.WriteHeader(http.StatusOK)
	if _, err := response.Write(buf.Bytes()); err != nil {
		log.Printf("httpapi: write failed: %v", err)
	}
}

func writeError(response http.ResponseWriter, status int, message string) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	_ = json.NewEncoder(response).Encode(errorResponse{Error: message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case analysis.IsInvalid(err),
		errors.Is(err, tableio.ErrUnsupportedFormat),
		errors.Is(err, report.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// setNoStoreHeaders prevents caching of analysis responses.
func setNoStoreHeaders(response http.ResponseWriter) {
	response.Header().Set("Cache-Control", "no-store")
	response.Header().Set("Pragma", "no-cache")
}
