package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes events on subjects <prefix>.<competitionID> and
// relays the wildcard subject into a local Hub.
type NATSNotifier struct {
	nc     *nats.Conn
	prefix string
	hub    *Hub
	sub    *nats.Subscription
}

// NewNATSNotifier connects to NATS and starts relaying published events
func NewNATSNotifier(url, prefix string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("judgehub"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return newNATSNotifier(nc, prefix)
}

func newNATSNotifier(nc *nats.Conn, prefix string) (*NATSNotifier, error) {
	n := &NATSNotifier{nc: nc, prefix: prefix, hub: NewHub()}

	sub, err := nc.Subscribe(prefix+".*", n.handleMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s.*: %w", prefix, err)
	}
	n.sub = sub

	// Make sure the server has the subscription before anyone publishes
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to flush subscription: %w", err)
	}

	slog.Info("nats notifier started", "prefix", prefix)
	return n, nil
}

func (n *NATSNotifier) subject(competitionID string) string {
	return n.prefix + "." + competitionID
}

// Notify publishes e. Local subscribers receive it through the relay.
func (n *NATSNotifier) Notify(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.nc.Publish(n.subject(e.CompetitionID), payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe registers a local handler
func (n *NATSNotifier) Subscribe(competitionID string, h Handler) *Subscription {
	return n.hub.Subscribe(competitionID, h)
}

func (n *NATSNotifier) handleMessage(msg *nats.Msg) {
	e, err := decodeEvent(msg.Data)
	if err != nil {
		slog.Warn("dropping malformed notification", "subject", msg.Subject, "error", err)
		return
	}
	if e.CompetitionID == "" {
		e.CompetitionID = strings.TrimPrefix(msg.Subject, n.prefix+".")
	}
	n.hub.Dispatch(e)
}

// Ping reports whether the connection is up
func (n *NATSNotifier) Ping(ctx context.Context) error {
	if !n.nc.IsConnected() {
		return fmt.Errorf("nats not connected: %s", n.nc.Status())
	}
	return nil
}

// Close unsubscribes and drains the connection
func (n *NATSNotifier) Close() error {
	if n.sub != nil {
		n.sub.Unsubscribe()
	}
	n.hub.Close()
	return n.nc.Drain()
}
