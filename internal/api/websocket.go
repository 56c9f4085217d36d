package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
	"github.com/sb-diagnostic-server/internal/middleware"
	"github.com/sb-diagnostic-server/internal/service"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// Live view message types.
const (
	messageHistory = "history"
	messageError   = "error"
)

type wsErrorMessage struct {
	Type  string      `json:"type"`
	Error interface{} `json:"error"`
}

// handleHistoryWS serves the live history view. The client sends history
// queries as JSON text messages; the server answers each with the matching
// view and re-sends the view for the latest query whenever the history
// changes.
func (s *Server) handleHistoryWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	correlationID := c.GetString(middleware.CorrelationIDKey)
	log := s.logger.WithField("correlation_id", correlationID)
	log.Debug("History subscriber connected")
	defer log.Debug("History subscriber disconnected")

	changes, unsubscribe := s.service.Changes().Subscribe()
	defer unsubscribe()

	queries := make(chan []byte)
	go s.readQueries(ctx, cancel, conn, queries)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	var query service.HistoryQuery
	if err := s.pushView(ctx, conn, query, correlationID); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-queries:
			var next service.HistoryQuery
			if err := json.Unmarshal(msg, &next); err != nil {
				if s.writeWS(conn, wsErrorMessage{Type: messageError, Error: badQueryError(err, correlationID)}) != nil {
					return
				}
				continue
			}
			err := s.pushView(ctx, conn, next, correlationID)
			if err == nil {
				query = next
			} else if isWriteError(err) {
				return
			}

		case _, ok := <-changes:
			if !ok {
				return
			}
			if isWriteError(s.pushView(ctx, conn, query, correlationID)) {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readQueries owns the read side of the connection until it fails.
func (s *Server) readQueries(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- []byte) {
	defer cancel()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).Warn("History subscriber closed unexpectedly")
			}
			return
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// pushView sends the view for query. An invalid query is reported to the
// client as an error message and returned as a queryError.
func (s *Server) pushView(ctx context.Context, conn *websocket.Conn, query service.HistoryQuery, correlationID string) error {
	view, err := s.historyView(ctx, query)
	if err != nil {
		_, apiErr := toAPIError(err, correlationID)
		if werr := s.writeWS(conn, wsErrorMessage{Type: messageError, Error: apiErr}); werr != nil {
			return werr
		}
		return queryError{err}
	}
	view.Type = messageHistory
	return s.writeWS(conn, view)
}

func (s *Server) writeWS(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.WithFields(logrus.Fields{"error": err.Error()}).Debug("WebSocket write failed")
		return err
	}
	return nil
}

// queryError marks a rejected query; the connection stays usable.
type queryError struct{ error }

func isWriteError(err error) bool {
	if err == nil {
		return false
	}
	_, rejected := err.(queryError)
	return !rejected
}

func badQueryError(err error, correlationID string) interface{} {
	invalid := domain.NewValidationError("query", fmt.Sprintf("Invalid history query: %v", err), nil)
	_, apiErr := toAPIError(invalid, correlationID)
	return apiErr
}

// checkOrigin accepts same-origin requests and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
