package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"platewatch/internal/config"
	"platewatch/internal/domain/lpr"
)

// NATSNotifier publishes alert events for the external notification service
// to consume. Publish failures are logged, never retried here; delivery is
// the notifier side's concern.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

type alertMessage struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Alert lpr.AlertEvent `json:"alert"`
}

func NewNATSNotifier(cfg config.NATSConfig, log zerolog.Logger) (*NATSNotifier, error) {
	opts := []nats.Option{
		nats.Name("platewatch"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("NATS connection established")
	return &NATSNotifier{conn: conn, subject: cfg.Subject, log: log}, nil
}

func (n *NATSNotifier) AlertRaised(ctx context.Context, ev lpr.AlertEvent) {
	n.publish("alert_raised", ev)
}

func (n *NATSNotifier) AlertUpdated(ctx context.Context, ev lpr.AlertEvent) {
	n.publish("alert_updated", ev)
}

func (n *NATSNotifier) publish(event string, ev lpr.AlertEvent) {
	payload, err := json.Marshal(alertMessage{Event: event, At: time.Now(), Alert: ev})
	if err != nil {
		n.log.Error().Err(err).Msg("failed to marshal alert event")
		return
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		n.log.Warn().
			Err(err).
			Str("event", event).
			Int64("alert_id", ev.AlertID).
			Msg("failed to publish alert event")
	}
}

// Shutdown drains the connection, falling back to an immediate close.
func (n *NATSNotifier) Shutdown() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.log.Warn().Err(err).Msg("failed to drain NATS connection, closing immediately")
		n.conn.Close()
	}
}

// NopNotifier drops all events; used when NATS is disabled and in tests.
type NopNotifier struct{}

func (NopNotifier) AlertRaised(context.Context, lpr.AlertEvent)  {}
func (NopNotifier) AlertUpdated(context.Context, lpr.AlertEvent) {}
