// Package pushbridge delivers an optional, best-effort MQTT notification
// when a job is enqueued for a printer that prefers push over waiting for
// its next poll interval. The printer (or a bridge process sitting next to
// it) still performs a normal CloudPRNT GET; this is only a nudge.
package pushbridge

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bvisible/CloudPRNT/internal/logger"
)

// PublishTimeout bounds how long Publish waits for broker acknowledgement,
// per spec.md §5's 5s push-bridge timeout.
const PublishTimeout = 5 * time.Second

// Config configures the MQTT connection.
type Config struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Bridge publishes job-ready notifications over MQTT.
type Bridge struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	log         *logger.Logger
}

// New connects to the configured broker. A nil *Bridge is a valid,
// always-swallowing push bridge: callers that don't configure one can skip
// calling New entirely and treat a nil *Bridge as "push disabled".
func New(cfg Config, log *logger.Logger) (*Bridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(PublishTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(PublishTimeout) {
		return nil, fmt.Errorf("pushbridge: connect to %s: timed out", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("pushbridge: connect to %s: %w", cfg.BrokerURL, err)
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "cloudprnt/jobs"
	}

	return &Bridge{client: client, topicPrefix: prefix, qos: cfg.QoS, log: log}, nil
}

// Publish sends a job-ready notification for mac carrying the URL the
// printer should GET. Failures are logged and swallowed — per spec.md §7,
// PushBridgeError never surfaces to the HTTP caller; the job is already
// safely enqueued and will be served on the printer's next ordinary poll
// regardless of whether this notification lands.
func (b *Bridge) Publish(ctx context.Context, mac, token, jobURL string) {
	if b == nil || b.client == nil {
		return
	}

	topic := b.topicPrefix + "/" + mac
	payload := fmt.Sprintf(`{"token":%q,"url":%q}`, token, jobURL)

	done := make(chan error, 1)
	go func() {
		pubToken := b.client.Publish(topic, b.qos, false, payload)
		pubToken.Wait()
		done <- pubToken.Error()
	}()

	select {
	case err := <-done:
		if err != nil && b.log != nil {
			b.log.WarnRateLimited("pushbridge-publish-error", time.Minute,
				"push bridge publish failed", "mac", mac, "error", err)
		}
	case <-ctx.Done():
		if b.log != nil {
			b.log.WarnRateLimited("pushbridge-publish-timeout", time.Minute,
				"push bridge publish timed out", "mac", mac)
		}
	case <-time.After(PublishTimeout):
		if b.log != nil {
			b.log.WarnRateLimited("pushbridge-publish-timeout", time.Minute,
				"push bridge publish timed out", "mac", mac)
		}
	}
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b == nil || b.client == nil {
		return
	}
	b.client.Disconnect(250)
}
