// Package notify publishes run outcome notifications over NATS JetStream.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/relforge/internal/config"
)

// RunNotification is the message published for every finished run.
type RunNotification struct {
	Kind      string    `json:"kind"` // always "run_finished"
	RunID     string    `json:"run_id"`
	Project   string    `json:"project"`
	Trigger   string    `json:"trigger"`
	Ref       string    `json:"ref"`
	Tag       string    `json:"tag,omitempty"`
	Status    string    `json:"status"` // "completed" or "failed"
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Assets    []string  `json:"assets,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AssetNotification is published for every asset attached to a release.
type AssetNotification struct {
	Kind      string    `json:"kind"` // always "asset_published"
	RunID     string    `json:"run_id"`
	Project   string    `json:"project"`
	Tag       string    `json:"tag"`
	Platform  string    `json:"platform"`
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers run notifications. The zero implementation used when
// notify is not configured drops everything.
type Notifier interface {
	RunFinished(ctx context.Context, n RunNotification) error
	AssetPublished(ctx context.Context, n AssetNotification) error
	Close()
}

// NoopNotifier drops all notifications.
type NoopNotifier struct{}

func (NoopNotifier) RunFinished(context.Context, RunNotification) error { return nil }

func (NoopNotifier) AssetPublished(context.Context, AssetNotification) error { return nil }

func (NoopNotifier) Close() {}

// NATSNotifier publishes notifications to a JetStream subject.
type NATSNotifier struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSNotifier connects to the configured NATS server and ensures the
// stream exists when one is named.
func NewNATSNotifier(cfg *config.NotifyConfig) (*NATSNotifier, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("notifications are disabled")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	n := &NATSNotifier{conn: conn, js: js, subject: cfg.Subject}

	if cfg.Stream != "" {
		if err := n.ensureStream(cfg.Stream); err != nil {
			conn.Close()
			return nil, err
		}
	}

	slog.Info("NATS notifier initialized", "url", cfg.URL, "subject", cfg.Subject)
	return n, nil
}

func (n *NATSNotifier) ensureStream(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := n.js.Stream(ctx, name)
	if err == nil {
		return nil
	}

	_, err = n.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: "relforge run notifications",
		Subjects:    []string{n.subject},
		MaxAge:      30 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}

	slog.Info("Created notification stream", "stream", name)
	return nil
}

// RunFinished publishes a notification for a finished run.
func (n *NATSNotifier) RunFinished(ctx context.Context, msg RunNotification) error {
	msg.Kind = "run_finished"
	msg.Timestamp = time.Now()
	if err := n.publish(ctx, msg); err != nil {
		return err
	}
	slog.Debug("Published run notification",
		"run_id", msg.RunID, "status", msg.Status, "subject", n.subject)
	return nil
}

// AssetPublished publishes a notification for a release asset attachment.
func (n *NATSNotifier) AssetPublished(ctx context.Context, msg AssetNotification) error {
	msg.Kind = "asset_published"
	msg.Timestamp = time.Now()
	if err := n.publish(ctx, msg); err != nil {
		return err
	}
	slog.Debug("Published asset notification",
		"run_id", msg.RunID, "asset", msg.Asset, "subject", n.subject)
	return nil
}

func (n *NATSNotifier) publish(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := n.js.Publish(pubCtx, n.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close drains the underlying connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
