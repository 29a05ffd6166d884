package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/dispatch"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/tableio"
)

// Submitter accepts analysis jobs; *dispatch.Dispatcher implements it.
type Submitter interface {
	Submit(job dispatch.Job) (uint32, error)
}

// Publisher sends a payload to a topic; *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Request is the JSON form of an analysis request. A payload may also be a
// bare JSON array or a whitespace or comma separated list of integers.
type Request struct {
	ID      string   `json:"id"`
	Table   []int    `json:"table"`
	Metrics []string `json:"metrics"`
}

// errorResult is published when a request cannot be analysed.
type errorResult struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// RxHandler implements Handler by decoding request payloads and submitting
// them to the dispatcher. Result topics are never treated as requests.
type RxHandler struct {
	Submitter   Submitter
	Publisher   Publisher
	ResultTopic string
}

// OnMessage decodes payload and queues the job. Requests that cannot be
// decoded or queued are answered with an error result when a Publisher is
// set.
func (handler *RxHandler) OnMessage(topic string, payload []byte) {
	metrics.RecordMQTTMessage()

	if isResultTopic(topic) {
		return
	}
	replyTo := ResultTopicFor(handler.ResultTopic, topic)

	req, err := ParseRequest(payload)
	if err != nil {
		metrics.RecordMQTTDropped("parse_error")
		log.Printf("mqtt: parse error on %s: %v", topic, err)
		handler.reject(replyTo, "", err)
		return
	}

	selected, err := analysis.ParseMetrics(req.Metrics)
	if err != nil {
		metrics.RecordMQTTDropped("unknown_metric")
		handler.reject(replyTo, req.ID, err)
		return
	}

	if handler.Submitter == nil {
		log.Printf("mqtt: rx topic=%s id=%s entries=%d (no dispatcher)", topic, req.ID, len(req.Table))
		return
	}

	job := dispatch.Job{ID: req.ID, Table: req.Table, Metrics: selected, ReplyTo: replyTo}
	if _, err := handler.Submitter.Submit(job); err != nil {
		reason := "submit_error"
		switch {
		case errors.Is(err, dispatch.ErrQueueFull):
			reason = "queue_full"
		case errors.Is(err, dispatch.ErrClosed):
			reason = "closed"
		}
		metrics.RecordMQTTDropped(reason)
		log.Printf("mqtt: dropped request %q: %v", req.ID, err)
		handler.reject(replyTo, req.ID, err)
	}
}

func (handler *RxHandler) reject(topic, id string, cause error) {
	if handler.Publisher == nil {
		return
	}
	data, err := json.Marshal(errorResult{ID: id, Error: cause.Error()})
	if err != nil {
		return
	}
	if err := handler.Publisher.Publish(topic, data); err != nil {
		log.Printf("mqtt: failed to publish error result: %v", err)
	}
}

// ParseRequest decodes a request payload: a JSON object, a JSON array, or
// plain text integers.
func ParseRequest(payload []byte) (Request, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Request{}, errors.New("empty payload")
	}

	switch trimmed[0] {
	case '{':
		var req Request
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return Request{}, fmt.Errorf("decode request: %w", err)
		}
		if len(req.Table) == 0 {
			return Request{}, errors.New("request has no table")
		}
		return req, nil
	case '[':
		table, err := tableio.Parse(bytes.NewReader(trimmed), tableio.FormatJSON)
		if err != nil {
			return Request{}, err
		}
		return Request{Table: table}, nil
	default:
		table, err := tableio.Parse(bytes.NewReader(trimmed), tableio.FormatText)
		if err != nil {
			return Request{}, err
		}
		return Request{Table: table}, nil
	}
}

// isResultTopic reports whether topic carries results rather than requests.
func isResultTopic(topic string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(topic)), "/result")
}

// ResultPublisher is a dispatch.Sink that publishes each finished job to
// its ReplyTo topic: the report as JSON, or {"id","error"} on failure.
type ResultPublisher struct {
	Publisher Publisher
}

// Deliver implements dispatch.Sink.
func (p *ResultPublisher) Deliver(_ context.Context, outcome dispatch.Outcome) error {
	if outcome.Job.ReplyTo == "" {
		return nil
	}

	var (
		data []byte
		err  error
	)
	if outcome.Err != nil {
		data, err = json.Marshal(errorResult{ID: outcome.Job.ID, Error: outcome.Err.Error()})
	} else {
		data, err = json.Marshal(struct {
			RequestID string `json:"request_id,omitempty"`
			analysis.Report
		}{RequestID: outcome.Job.ID, Report: outcome.Report})
	}
	if err != nil {
		return fmt.Errorf("mqtt: encode result: %w", err)
	}
	return p.Publisher.Publish(outcome.Job.ReplyTo, data)
}
