package mqtt

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/normalizer"
)

const (
	TopicLocation   = "livemap/drivers/+/location"
	TopicAlert      = "livemap/drivers/+/alert"
	TopicTollbooths = "livemap/tollbooths"
)

type engine interface {
	Handle(ctx context.Context, raw normalizer.WireEvent) domain.Notification
	Connecting(ctx context.Context)
	Connected(ctx context.Context)
	Disconnected(ctx context.Context)
}

// Subscriber feeds broker messages into the engine and reports the
// session lifecycle. It resubscribes on every (re)connect since the
// session is not persistent.
type Subscriber struct {
	client paho.Client
	engine engine
	ctx    context.Context
}

func NewSubscriber(engine engine) *Subscriber {
	return &Subscriber{engine: engine, ctx: context.Background()}
}

func (s *Subscriber) ClientOptions(broker, clientID string) *paho.ClientOptions {
	return paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetReconnectingHandler(s.onReconnecting)
}

// Start dials the broker. With connect retry enabled the client keeps
// trying in the background, so a slow broker is not an error here.
func (s *Subscriber) Start(ctx context.Context, broker, clientID string) error {
	s.ctx = ctx
	s.client = paho.NewClient(s.ClientOptions(broker, clientID))

	s.engine.Connecting(ctx)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt broker %s not reachable yet, retrying in background", broker)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.engine.Disconnected(context.WithoutCancel(s.ctx))
}

func (s *Subscriber) onConnect(client paho.Client) {
	filters := map[string]byte{
		TopicLocation:   1,
		TopicAlert:      1,
		TopicTollbooths: 1,
	}
	token := client.SubscribeMultiple(filters, s.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("mqtt subscribe failed: %v", err)
		return
	}
	s.engine.Connected(s.ctx)
}

func (s *Subscriber) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt connection lost: %v", err)
	s.engine.Disconnected(s.ctx)
}

func (s *Subscriber) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	s.engine.Connecting(s.ctx)
}

func (s *Subscriber) handleMessage(_ paho.Client, msg paho.Message) {
	name, driverID := routeTopic(msg.Topic())
	s.engine.Handle(s.ctx, normalizer.WireEvent{
		Name:       name,
		Body:       msg.Payload(),
		DriverHint: driverID,
	})
}

// routeTopic maps a topic to an event name and the driver id segment.
// Unknown topics return an empty name so the kind is inferred from the
// payload.
func routeTopic(topic string) (name, driverID string) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "livemap" && parts[1] == "tollbooths":
		return string(domain.KindTollboothAdded), ""
	case len(parts) == 4 && parts[0] == "livemap" && parts[1] == "drivers":
		switch parts[3] {
		case "location":
			return string(domain.KindLocationUpdate), parts[2]
		case "alert":
			return string(domain.KindAlert), parts[2]
		}
		return "", parts[2]
	}
	return "", ""
}

func DriverTopic(driverID, kind string) string {
	return fmt.Sprintf("livemap/drivers/%s/%s", driverID, kind)
}
