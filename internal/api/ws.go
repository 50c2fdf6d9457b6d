package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/judgehub/internal/notify"
)

const (
	// subscriberQueue bounds pending events per connection; extras are dropped
	subscriberQueue = 16
	wsWriteWait     = 10 * time.Second
	wsPongWait      = 60 * time.Second
	wsPingPeriod    = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is a frame sent to websocket subscribers
type StreamMessage struct {
	Type          string `json:"type"`
	CompetitionID string `json:"competitionId"`
	Status        string `json:"status,omitempty"`
}

func (s *Server) handleSubscribeWS(w http.ResponseWriter, r *http.Request) {
	competitionID := chi.URLParam(r, "id")

	if _, err := s.service.GetCompetition(r.Context(), competitionID); err != nil {
		respondServiceError(w, err)
		return
	}
	if s.subscriber == nil {
		respondError(w, http.StatusServiceUnavailable, "not_available", "live updates are not available")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	events := make(chan notify.Event, subscriberQueue)
	sub := s.subscriber.Subscribe(competitionID, func(e notify.Event) {
		select {
		case events <- e:
		default:
			slog.Debug("subscriber queue full, dropping event", "competition_id", competitionID)
		}
	})
	defer sub.Unsubscribe()

	s.metrics.Subscribers.Inc()
	defer s.metrics.Subscribers.Dec()

	slog.Info("subscriber connected", "competition_id", competitionID, "remote_addr", r.RemoteAddr)

	// Reader: only control frames are expected; exits when the client goes away
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	if err := writeStreamMessage(conn, StreamMessage{Type: "subscribed", CompetitionID: competitionID}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			slog.Info("subscriber disconnected", "competition_id", competitionID)
			return
		case e := <-events:
			msg := StreamMessage{Type: e.Type, CompetitionID: e.CompetitionID, Status: e.Status}
			if err := writeStreamMessage(conn, msg); err != nil {
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

func writeStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal stream message", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send stream message", "error", err)
		return err
	}
	return nil
}
