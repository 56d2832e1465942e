package bus

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
)

// TestKafkaConfig_Validation tests configuration validation.
func TestKafkaConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: KafkaConfig{
				Brokers:       []string{"localhost:9092"},
				ConsumerGroup: "test-group",
			},
			wantErr: false,
		},
		{
			name: "empty brokers",
			cfg: KafkaConfig{
				Brokers:       []string{},
				ConsumerGroup: "test-group",
			},
			wantErr: true,
		},
		{
			name: "empty consumer group",
			cfg: KafkaConfig{
				Brokers:       []string{"localhost:9092"},
				ConsumerGroup: "",
			},
			wantErr: true,
		},
		{
			name: "invalid kafka version",
			cfg: KafkaConfig{
				Brokers:       []string{"localhost:9092"},
				ConsumerGroup: "test-group",
				Version:       "invalid",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, err := NewKafkaBus(tt.cfg)
			if (err != nil) != tt.wantErr {
				// Skip the test if Kafka is not running (only for valid config test)
				if tt.name == "valid config" && err != nil {
					t.Skip("Skipping test - Kafka not running")
					return
				}
				t.Errorf("NewKafkaBus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bus != nil {
				bus.Close()
			}
		})
	}
}

// TestParseKafkaBrokers tests broker string parsing.
func TestParseKafkaBrokers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single broker",
			input: "localhost:9092",
			want:  []string{"localhost:9092"},
		},
		{
			name:  "multiple brokers",
			input: "broker1:9092,broker2:9092,broker3:9092",
			want:  []string{"broker1:9092", "broker2:9092", "broker3:9092"},
		},
		{
			name:  "with whitespace",
			input: "broker1:9092 , broker2:9092 , broker3:9092",
			want:  []string{"broker1:9092", "broker2:9092", "broker3:9092"},
		},
		{
			name:  "trailing comma",
			input: "broker1:9092,",
			want:  []string{"broker1:9092"},
		},
		{
			name:  "empty string",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKafkaBrokers(tt.input)
			if len(got) != len(tt.want) {
				t.Errorf("ParseKafkaBrokers() = %v, want %v", got, tt.want)
				return
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseKafkaBrokers()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestKafkaBus_MessageRoundTrip(t *testing.T) {
	event, err := NewEvent("ranking.partial", "runner", "run-7", partial{Shard: 3, Sum: 2})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := producerMessage(TopicRankingPartial, event)
	if err != nil {
		t.Fatalf("producerMessage() error = %v", err)
	}

	key, _ := msg.Key.Encode()
	if string(key) != "run-7" {
		t.Errorf("partition key = %s, want run-7", key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "run-7" {
		t.Errorf("headers = %+v, want correlation header", msg.Headers)
	}

	value, _ := msg.Value.Encode()
	got, err := decodeMessage(&sarama.ConsumerMessage{Value: value})
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}
	if got.ID != event.ID || got.CorrelationID != "run-7" {
		t.Errorf("decoded event = %+v", got)
	}

	var p partial
	if err := got.Decode(&p); err != nil || p.Shard != 3 {
		t.Errorf("payload = %+v, err = %v", p, err)
	}
}

// TestKafkaBus_CorrelationIDHeader tests correlation ID extraction from headers.
func TestKafkaBus_CorrelationIDHeader(t *testing.T) {
	msg := &sarama.ConsumerMessage{
		Value: []byte(`{"id":"e1","type":"t"}`),
		Headers: []*sarama.RecordHeader{
			{
				Key:   []byte("correlation_id"),
				Value: []byte("test-correlation-123"),
			},
		},
	}

	event, err := decodeMessage(msg)
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}
	if event.CorrelationID != "test-correlation-123" {
		t.Errorf("Correlation ID = %s, want test-correlation-123", event.CorrelationID)
	}
}

func TestKafkaBus_DecodeGarbage(t *testing.T) {
	if _, err := decodeMessage(&sarama.ConsumerMessage{Value: []byte("nope")}); err == nil {
		t.Error("decodeMessage() should reject invalid JSON")
	}
}

// TestKafkaBus_Interface verifies KafkaBus implements Bus interface.
func TestKafkaBus_Interface(t *testing.T) {
	var _ Bus = (*KafkaBus)(nil)
	var _ Bus = (*MemoryBus)(nil)
	var _ Bus = (*LoggedBus)(nil)
}

// TestKafkaBus_CloseIdempotent tests that Close() can be called multiple times safely.
func TestKafkaBus_CloseIdempotent(t *testing.T) {
	bus := &KafkaBus{
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		closed:       true,
	}

	if err := bus.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}
}

// TestKafkaBus_PublishAfterClose tests that operations fail after Close().
func TestKafkaBus_PublishAfterClose(t *testing.T) {
	bus := &KafkaBus{
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		closed:       true,
	}

	err := bus.Publish(context.Background(), "test", Event{ID: "test"})
	if err == nil {
		t.Error("Publish() after Close() should return error")
	}
}

// TestKafkaBus_SubscribeAfterClose tests that Subscribe fails after Close().
func TestKafkaBus_SubscribeAfterClose(t *testing.T) {
	bus := &KafkaBus{
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		closed:       true,
	}

	err := bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error {
		return nil
	})
	if err == nil {
		t.Error("Subscribe() after Close() should return error")
	}
}
