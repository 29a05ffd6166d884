package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
)

const streamWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamMessage is one frame sent to a stream client. Type is "metric" for
// each finished metric, then "report" or "error" as the last frame.
type streamMessage struct {
	Type   string                 `json:"type"`
	Result *analysis.MetricResult `json:"result,omitempty"`
	Report *analysis.Report       `json:"report,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// handleStream upgrades to a WebSocket, reads a single analyzeRequest and
// streams results as they finish.
func (s *Server) handleStream(response http.ResponseWriter, request *http.Request) {
	if !s.allow(response) {
		return
	}

	conn, err := upgrader.Upgrade(response, request, nil)
	if err != nil {
		log.Printf("httpapi: stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.maxBodyBytes)
	send := func(msg streamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(msg)
	}

	var body analyzeRequest
	if err := conn.ReadJSON(&body); err != nil {
		_ = send(streamMessage{Type: "error", Error: "invalid request: " + err.Error()})
		return
	}

	selected, err := analysis.ParseMetrics(body.Metrics)
	if err != nil {
		_ = send(streamMessage{Type: "error", Error: err.Error()})
		return
	}

	r, err := s.analyzer.AnalyzeWithProgress(request.Context(), body.Table, selected, func(result analysis.MetricResult) {
		if err := send(streamMessage{Type: "metric", Result: &result}); err != nil {
			log.Printf("httpapi: stream write failed: %v", err)
		}
	})
	if err != nil {
		_ = send(streamMessage{Type: "error", Error: err.Error()})
		return
	}
	s.save(request.Context(), r)

	if err := send(streamMessage{Type: "report", Report: &r}); err != nil {
		log.Printf("httpapi: stream write failed: %v", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteTimeout))
}
