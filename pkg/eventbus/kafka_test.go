package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "events"})
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{" "}, Topic: "events"})
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"\t", "127.0.0.1:9092"}, Topic: "events"})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestPublishWritesOneMessagePerEvent(t *testing.T) {
	w := &fakeKafkaWriter{}
	p := &KafkaPublisher{writer: w}
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), ledger.Event{
		Name:      "MedicalDataStored",
		Payload:   []byte(`{"recordId":"rec-1"}`),
		TxID:      "tx-1",
		Timestamp: ts,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "tx-1", string(msg.Key))
	assert.JSONEq(t, `{"recordId":"rec-1"}`, string(msg.Value))
	assert.Equal(t, ts, msg.Time)
	assert.Contains(t, msg.Headers, kafka.Header{Key: "event", Value: []byte("MedicalDataStored")})

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishPropagatesWriterErrors(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeKafkaWriter{err: errors.New("broker down")}}
	assert.EqualError(t, p.Publish(context.Background(), ledger.Event{Name: "x"}), "broker down")
}

func TestNilPublisherGuards(t *testing.T) {
	var p *KafkaPublisher
	assert.NoError(t, p.Close())
	assert.Error(t, p.Publish(context.Background(), ledger.Event{}))
}

func TestPublisherReceivesCommittedEvents(t *testing.T) {
	w := &fakeKafkaWriter{}
	l := ledger.New(ledger.NewMemory(), ledger.WithSubscriber(&KafkaPublisher{writer: w}))

	require.NoError(t, l.Invoke(context.Background(), func(st ledger.State) error {
		return ledger.EmitJSON(st, "KeyRotated", map[string]string{"keyId": "sym-1"})
	}))
	_ = l.Invoke(context.Background(), func(st ledger.State) error {
		_ = ledger.EmitJSON(st, "KeyRevoked", map[string]string{"keyId": "sym-1"})
		return errors.New("rolled back")
	})

	require.Len(t, w.msgs, 1)
	assert.Contains(t, w.msgs[0].Headers, kafka.Header{Key: "event", Value: []byte("KeyRotated")})
}
