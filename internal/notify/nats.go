package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"fleet-monitor/livemap/internal/domain"
)

const subjectPrefix = "livemap.alerts"

// NATSPublisher publishes alert notices on livemap.alerts.<severity> so
// consumers can subscribe to a single class or to livemap.alerts.>.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("livemap"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Printf("nats error: %v", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) PublishAlert(_ context.Context, notice domain.AlertNotice) error {
	body, err := encodeNotice(notice)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(AlertSubject(notice.Alert.Severity))
	msg.Data = body
	msg.Header.Set("Content-Type", "application/json")
	if notice.Alert.ID != "" {
		msg.Header.Set(nats.MsgIdHdr, notice.Alert.ID)
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

func AlertSubject(severity domain.AlertSeverity) string {
	s := strings.ToLower(string(severity))
	if s == "" {
		s = "unknown"
	}
	return subjectPrefix + "." + s
}
