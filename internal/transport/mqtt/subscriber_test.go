package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/normalizer"
)

type mockEngine struct {
	handleFn func(raw normalizer.WireEvent)
	signals  []string
}

func (m *mockEngine) Handle(_ context.Context, raw normalizer.WireEvent) domain.Notification {
	if m.handleFn != nil {
		m.handleFn(raw)
	}
	return domain.Notification{}
}

func (m *mockEngine) Connecting(context.Context)   { m.signals = append(m.signals, "connecting") }
func (m *mockEngine) Connected(context.Context)    { m.signals = append(m.signals, "connected") }
func (m *mockEngine) Disconnected(context.Context) { m.signals = append(m.signals, "disconnected") }

type fakeMQTTMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMQTTMessage) Duplicate() bool   { return false }
func (f *fakeMQTTMessage) Qos() byte         { return 1 }
func (f *fakeMQTTMessage) Retained() bool    { return false }
func (f *fakeMQTTMessage) Topic() string     { return f.topic }
func (f *fakeMQTTMessage) MessageID() uint16 { return 0 }
func (f *fakeMQTTMessage) Payload() []byte   { return f.payload }
func (f *fakeMQTTMessage) Ack()              {}

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeClient struct {
	paho.Client
	filters map[string]byte
	err     error
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, _ paho.MessageHandler) paho.Token {
	c.filters = filters
	return &fakeToken{err: c.err}
}

func TestRouteTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantName string
		wantID   string
	}{
		{"livemap/drivers/driver_007/location", "location_update", "driver_007"},
		{"livemap/drivers/driver_007/alert", "drowsiness_alert", "driver_007"},
		{"livemap/tollbooths", "tollbooth_added", ""},
		{"/livemap/drivers/d1/location/", "location_update", "d1"},
		{"livemap/drivers/d1/telemetry", "", "d1"},
		{"other/topic", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			name, id := routeTopic(tt.topic)
			if name != tt.wantName || id != tt.wantID {
				t.Errorf("routeTopic(%q) = (%q, %q), want (%q, %q)", tt.topic, name, id, tt.wantName, tt.wantID)
			}
		})
	}
}

func TestHandleMessage(t *testing.T) {
	var got normalizer.WireEvent
	eng := &mockEngine{handleFn: func(raw normalizer.WireEvent) { got = raw }}
	sub := NewSubscriber(eng)

	payload := []byte(`{"lat":28.7,"lon":77.1}`)
	sub.handleMessage(nil, &fakeMQTTMessage{topic: "livemap/drivers/driver_007/location", payload: payload})

	if got.Name != "location_update" || got.DriverHint != "driver_007" {
		t.Errorf("unexpected wire event %+v", got)
	}
	if string(got.Body) != string(payload) {
		t.Errorf("body = %s", got.Body)
	}
}

func TestLifecycleHandlers(t *testing.T) {
	eng := &mockEngine{}
	sub := NewSubscriber(eng)
	client := &fakeClient{}

	sub.onConnect(client)
	sub.onConnectionLost(client, errors.New("EOF"))
	sub.onReconnecting(client, nil)
	sub.onConnect(client)

	want := []string{"connected", "disconnected", "connecting", "connected"}
	if len(eng.signals) != len(want) {
		t.Fatalf("signals = %v, want %v", eng.signals, want)
	}
	for i := range want {
		if eng.signals[i] != want[i] {
			t.Fatalf("signals = %v, want %v", eng.signals, want)
		}
	}
	for _, topic := range []string{TopicLocation, TopicAlert, TopicTollbooths} {
		if _, ok := client.filters[topic]; !ok {
			t.Errorf("missing subscription to %s", topic)
		}
	}
}

func TestOnConnect_SubscribeFailureKeepsState(t *testing.T) {
	eng := &mockEngine{}
	sub := NewSubscriber(eng)

	sub.onConnect(&fakeClient{err: errors.New("not authorized")})

	if len(eng.signals) != 0 {
		t.Errorf("expected no Connected signal when subscribe fails, got %v", eng.signals)
	}
}

func TestDriverTopic(t *testing.T) {
	if got := DriverTopic("d1", "alert"); got != "livemap/drivers/d1/alert" {
		t.Errorf("got %q", got)
	}
}
