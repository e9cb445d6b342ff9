package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kozaktomas/face-recognizer/internal/config"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBroker struct {
	token        *fakeToken
	messages     []published
	disconnected bool
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	b.messages = append(b.messages, published{topic, qos, retained, payload.([]byte)})
	return b.token
}

func (b *fakeBroker) Disconnect(uint) { b.disconnected = true }

func TestNew_NoBrokerIsNop(t *testing.T) {
	p, err := New(config.MQTTConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(Nop); !ok {
		t.Errorf("expected Nop publisher, got %T", p)
	}
}

func TestMQTTPublisher_Publish(t *testing.T) {
	b := &fakeBroker{token: &fakeToken{complete: true}}
	p := newMQTTPublisher(b, "faces/")

	p.Publish(context.Background(), TopicRecognized, Recognized{Label: "Alice", Distance: 0.25, Similarity: 0.8})

	if len(b.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(b.messages))
	}
	msg := b.messages[0]
	if msg.topic != "faces/recognized" {
		t.Errorf("expected topic faces/recognized, got %s", msg.topic)
	}
	if msg.qos != 0 || msg.retained {
		t.Errorf("expected qos 0 and not retained, got %d/%v", msg.qos, msg.retained)
	}

	var got Recognized
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Label != "Alice" || got.Distance != 0.25 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestMQTTPublisher_ErrorsAreSwallowed(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"publish error", &fakeToken{complete: true, err: errors.New("not connected")}},
		{"timeout", &fakeToken{complete: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBroker{token: tt.token}
			p := newMQTTPublisher(b, "faces")
			p.Publish(context.Background(), TopicEnrolled, Enrolled{Label: "Bob", Descriptors: 5})
			if len(b.messages) != 1 {
				t.Errorf("expected publish attempt, got %d", len(b.messages))
			}
		})
	}
}

func TestMQTTPublisher_Close(t *testing.T) {
	b := &fakeBroker{token: &fakeToken{complete: true}}
	p := newMQTTPublisher(b, "faces")
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.disconnected {
		t.Error("expected Disconnect to be called")
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Publish(context.Background(), TopicEnrolled, Enrolled{Label: "Alice"})
	msgs := r.Messages()
	if len(msgs) != 1 || msgs[0].Subtopic != TopicEnrolled {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}
