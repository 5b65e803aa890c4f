//go:build unit

package mockkafka_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/stretchr/testify/require"
)

func newConsumer(t *testing.T, b *mockkafka.Broker, topic string) *mockkafka.Consumer {
	t.Helper()

	c, err := b.Factory()(context.Background(), kafka.ClientConfig{Topic: topic}, kafka.ConsistencyEventual)
	require.NoError(t, err)
	return c.(*mockkafka.Consumer)
}

func TestBroker_PollReturnsRecordsInOrder(t *testing.T) {
	b := mockkafka.NewBroker()
	b.AddRecords("orders", 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	c := newConsumer(t, b, "orders")

	batch, err := c.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, r := range batch {
		require.Equal(t, int64(i), r.Offset)
		require.Equal(t, "orders", r.Topic)
		require.NotNil(t, r.Marker)
	}

	last, _ := batch.Last()
	require.Equal(t, int64(3), kafka.OffsetsOf(last.Marker)[last.TopicPartition()].Offset)
}

func TestBroker_MaxPollRecords(t *testing.T) {
	b := mockkafka.NewBroker(mockkafka.WithMaxPollRecords(2))
	b.AddRecords("orders", 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	c := newConsumer(t, b, "orders")

	batch, err := c.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	batch, err = c.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, int64(2), batch[0].Offset)
}

func TestBroker_PollTimesOutWithEmptyBatch(t *testing.T) {
	b := mockkafka.NewBroker()
	c := newConsumer(t, b, "orders")

	batch, err := c.Poll(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestBroker_PollWakesOnAppend(t *testing.T) {
	b := mockkafka.NewBroker()
	c := newConsumer(t, b, "orders")

	type result struct {
		batch kafka.RecordBatch
		err   error
	}
	done := make(chan result, 1)
	go func() {
		batch, err := c.Poll(context.Background(), 5*time.Second)
		done <- result{batch, err}
	}()

	require.Eventually(t, c.IsBlocked, time.Second, 5*time.Millisecond)
	b.AddRecords("orders", 0, mockkafka.SimpleRecord("k", "v"))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.batch, 1)
	case <-time.After(time.Second):
		t.Fatal("poll did not return after records were added")
	}
}

func TestConsumer_Wakeup(t *testing.T) {
	t.Run(
		"interrupts blocked poll", func(t *testing.T) {
			t.Parallel()

			b := mockkafka.NewBroker()
			c := newConsumer(t, b, "orders")

			done := make(chan error, 1)
			go func() {
				_, err := c.Poll(context.Background(), 10*time.Second)
				done <- err
			}()

			require.Eventually(t, c.IsBlocked, time.Second, 5*time.Millisecond)
			c.Wakeup()

			select {
			case err := <-done:
				require.ErrorIs(t, err, kafka.ErrWakeup)
			case <-time.After(time.Second):
				t.Fatal("wakeup did not interrupt poll")
			}
		},
	)

	t.Run(
		"pending wakeup fails next poll once", func(t *testing.T) {
			t.Parallel()

			b := mockkafka.NewBroker()
			b.AddRecords("orders", 0, mockkafka.SimpleRecord("k", "v"))
			c := newConsumer(t, b, "orders")

			c.Wakeup()

			_, err := c.Poll(context.Background(), time.Second)
			require.ErrorIs(t, err, kafka.ErrWakeup)

			batch, err := c.Poll(context.Background(), time.Second)
			require.NoError(t, err)
			require.Len(t, batch, 1)
			require.Equal(t, 1, c.WakeupCount())
		},
	)

	t.Run(
		"context cancellation interrupts poll", func(t *testing.T) {
			t.Parallel()

			b := mockkafka.NewBroker()
			c := newConsumer(t, b, "orders")

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := c.Poll(ctx, 10*time.Second)
			require.ErrorIs(t, err, context.Canceled)
		},
	)
}

func TestConsumer_CommitAndResume(t *testing.T) {
	b := mockkafka.NewBroker()
	b.AddRecords("orders", 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	c := newConsumer(t, b, "orders")
	batch, err := c.Poll(context.Background(), time.Second)
	require.NoError(t, err)

	require.NoError(t, c.CommitSync(context.Background(), batch[1].Marker))
	b.AssertCommitted(t, "orders", 0, 2)

	c.Close()
	require.True(t, c.IsClosed())

	_, err = c.Poll(context.Background(), time.Second)
	require.ErrorIs(t, err, kafka.ErrClientClosed)

	next := newConsumer(t, b, "orders")
	batch, err = next.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, int64(2), batch[0].Offset)
}

func TestConsumer_RewindToCommitted(t *testing.T) {
	b := mockkafka.NewBroker()
	b.AddRecords("orders", 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2", "k3", "v3")...)

	c := newConsumer(t, b, "orders")
	batch, err := c.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, c.CommitSync(context.Background(), batch[0].Marker))

	require.NoError(t, c.RewindToCommitted(context.Background()))
	require.Equal(t, 1, c.RewindCount())

	batch, err = c.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, int64(1), batch[0].Offset)
}

func TestConsumer_PatternSubscription(t *testing.T) {
	b := mockkafka.NewBroker()
	b.AddRecords("orders-eu", 0, mockkafka.SimpleRecord("k1", "v1"))
	b.AddRecords("orders-us", 0, mockkafka.SimpleRecord("k2", "v2"))
	b.AddRecords("payments", 0, mockkafka.SimpleRecord("k3", "v3"))

	raw, err := b.Factory()(
		context.Background(), kafka.ClientConfig{Topic: "orders-.*", TopicIsPattern: true},
		kafka.ConsistencyEventual,
	)
	require.NoError(t, err)

	batch, err := raw.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, "orders-eu", batch[0].Topic)
	require.Equal(t, "orders-us", batch[1].Topic)
}

func TestConsumer_ErrorInjection(t *testing.T) {
	b := mockkafka.NewBroker()
	b.AddRecords("orders", 0, mockkafka.SimpleRecord("k", "v"))
	c := newConsumer(t, b, "orders")

	pollErr := errors.New("poll failed")
	c.SetPollError(pollErr)
	_, err := c.Poll(context.Background(), time.Second)
	require.ErrorIs(t, err, pollErr)

	c.SetPollError(nil)
	batch, err := c.Poll(context.Background(), time.Second)
	require.NoError(t, err)

	commitErr := errors.New("commit failed")
	c.SetCommitError(commitErr)
	require.ErrorIs(t, c.CommitSync(context.Background(), batch[0].Marker), commitErr)
	b.AssertNotCommitted(t, "orders", 0)
}

func TestBroker_FactoryError(t *testing.T) {
	createErr := errors.New("broker unavailable")
	b := mockkafka.NewBroker(
		mockkafka.WithFactoryErrorFunc(
			func(attempt int) error {
				if attempt < 3 {
					return createErr
				}
				return nil
			},
		),
	)

	factory := b.Factory()
	for i := 0; i < 2; i++ {
		_, err := factory(context.Background(), kafka.ClientConfig{Topic: "orders"}, kafka.ConsistencyEventual)
		require.ErrorIs(t, err, createErr)
	}

	_, err := factory(context.Background(), kafka.ClientConfig{Topic: "orders"}, kafka.ConsistencyEventual)
	require.NoError(t, err)
	require.Equal(t, 3, b.FactoryAttempts())
	require.Len(t, b.Consumers(), 1)
}

func TestProducer_Send(t *testing.T) {
	p := mockkafka.NewProducer()

	err := p.Send(
		context.Background(), "dlq", []byte("key"), []byte("value"),
		[]kafka.Header{{Key: "trace-id", Value: []byte("abc")}},
	)
	require.NoError(t, err)

	records := p.ProducedRecordsForTopic("dlq")
	require.Len(t, records, 1)
	require.Equal(t, []byte("abc"), records[0].Headers[0].Value)
	p.AssertProducedString(t, "dlq", "key", "value")

	sendErr := errors.New("send failed")
	p.SetSendError(sendErr)
	require.ErrorIs(t, p.Send(context.Background(), "dlq", nil, nil, nil), sendErr)
	require.Len(t, p.ProducedRecords(), 1)
}
