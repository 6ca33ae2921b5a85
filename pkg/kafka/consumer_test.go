package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/queue"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/resilience"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBumpDeliveryCount(t *testing.T) {
	first := bumpDeliveryCount([]kafka.Header{{Key: "trace", Value: []byte("abc")}})
	assert.Equal(t, []kafka.Header{
		{Key: "trace", Value: []byte("abc")},
		{Key: HeaderDeliveryCount, Value: []byte("1")},
	}, first)

	second := bumpDeliveryCount(first)
	assert.Len(t, second, 2)
	assert.Equal(t, "2", string(second[1].Value))
}

func TestToQueueMessage(t *testing.T) {
	msg := toQueueMessage(kafka.Message{
		Key:     []byte("doc1"),
		Value:   []byte(`{"id":"doc1"}`),
		Headers: []kafka.Header{{Key: HeaderDeliveryCount, Value: []byte("3")}},
	})

	assert.Equal(t, "doc1", string(msg.Key))
	assert.True(t, msg.Redelivered)
	assert.Equal(t, "3", msg.Headers[HeaderDeliveryCount])

	fresh := toQueueMessage(kafka.Message{Value: []byte("{}")})
	assert.False(t, fresh.Redelivered)
}

// partitionReader serves a fixed run of messages from one partition and
// records commits.
type partitionReader struct {
	msgs      []kafka.Message
	fetched   int
	committed []int64
}

func (r *partitionReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.fetched == len(r.msgs) {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[r.fetched]
	r.fetched++
	return m, nil
}

func (r *partitionReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *partitionReader) Close() error { return nil }

// downPublisher fails its first failures publishes.
type downPublisher struct {
	failures int
	sent     [][]byte
}

func (p *downPublisher) PublishRaw(_ context.Context, _, value []byte, _ []kafka.Header) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("kafka: leader not available")
	}
	p.sent = append(p.sent, value)
	return nil
}

func (p *downPublisher) Close() error { return nil }

func newTestConsumer(reader *partitionReader, dlq *downPublisher) *Consumer {
	return &Consumer{
		reader:      reader,
		requeue:     &downPublisher{},
		deadLetter:  dlq,
		settleRetry: resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func twoMessages() *partitionReader {
	return &partitionReader{msgs: []kafka.Message{
		{Partition: 0, Offset: 10, Value: []byte("bad")},
		{Partition: 0, Offset: 11, Value: []byte("good")},
	}}
}

func deadLetterBad(_ context.Context, m queue.Message) queue.Decision {
	if string(m.Body) == "bad" {
		return queue.Nack(false)
	}
	return queue.Ack()
}

func TestUnsettledMessageStopsConsumer(t *testing.T) {
	reader := twoMessages()
	c := newTestConsumer(reader, &downPublisher{failures: 100})

	err := c.Start(context.Background(), deadLetterBad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 10")
	assert.Equal(t, 1, reader.fetched)
	assert.Empty(t, reader.committed)
}

func TestSettlementRetriesBeforeMovingOn(t *testing.T) {
	reader := twoMessages()
	dlq := &downPublisher{failures: 2}
	c := newTestConsumer(reader, dlq)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Start(ctx, deadLetterBad))

	assert.Equal(t, []int64{10, 11}, reader.committed)
	assert.Equal(t, [][]byte{[]byte("bad")}, dlq.sent)
}
