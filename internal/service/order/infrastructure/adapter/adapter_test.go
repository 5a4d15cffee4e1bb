package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment/internal/pkg/mq"
	"fulfillment/internal/service/order/domain"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestEventKafkaAdapter_Publish(t *testing.T) {
	w := &recordingWriter{}
	event := domain.NewEvent(domain.SourceOrders, domain.OrderCreated, "o-1", domain.OrderCreatedDetail{
		OrderID: "o-1",
		UserID:  "alice",
		Amount:  decimal.RequireFromString("9.99"),
	}, time.Now())

	require.NoError(t, NewEventKafkaAdapter(w).Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o-1", string(msg.Key))
	assert.Equal(t, domain.OrderCreated, mq.Header(msg.Headers, HeaderEventType))
	assert.Equal(t, domain.SourceOrders, mq.Header(msg.Headers, "event-source"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "OrderCreated", decoded["detailType"])
	assert.Equal(t, 9.99, decoded["detail"].(map[string]any)["amount"])
}

func TestWorkflowKafkaAdapter_StartWorkflow(t *testing.T) {
	w := &recordingWriter{}
	amount := decimal.NewFromInt(4)
	input := &domain.WorkflowPayload{
		OrderID: "o-1",
		UserID:  "alice",
		Amount:  &amount,
		Items:   []domain.Item{{SKU: "A", Qty: 2, Price: decimal.NewFromInt(2)}},
	}

	require.NoError(t, NewWorkflowKafkaAdapter(w).StartWorkflow(context.Background(), input))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, firstStep, mq.Header(w.msgs[0].Headers, HeaderStep))

	// 消费方严格解码，输出必须能被原样读回
	decoded, err := domain.DecodePayloadBytes(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "o-1", decoded.OrderID)
	assert.True(t, decoded.Amount.Equal(amount))

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, NewWorkflowKafkaAdapter(w).StartWorkflow(context.Background(), input), "leader not available")
}

func TestSimulatedPaymentAdapter_IsDeterministic(t *testing.T) {
	a := NewSimulatedPaymentAdapter()
	p1, err := a.Capture(context.Background(), "o-1", decimal.NewFromInt(10))
	require.NoError(t, err)
	p2, err := a.Capture(context.Background(), "o-1", decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentSucceeded, p1.Status)
	assert.Equal(t, p1.PaymentID, p2.PaymentID)
	assert.Equal(t, "pay_o-1", p1.PaymentID)
}

func TestLogAdapter(t *testing.T) {
	var l LogAdapter
	assert.NoError(t, l.Publish(context.Background(), domain.NewEvent(domain.SourceOrders, domain.OrderCreated, "o-1", nil, time.Now())))
	assert.NoError(t, l.StartWorkflow(context.Background(), &domain.WorkflowPayload{OrderID: "o-1"}))
}

func TestEventHub_FansOutToOrderSubscribers(t *testing.T) {
	w := &recordingWriter{}
	hub := NewEventHub(NewEventKafkaAdapter(w))
	ctx := context.Background()

	sub := hub.Subscribe("o-1")
	other := hub.Subscribe("o-2")
	defer other.Close()

	event := domain.NewEvent(domain.SourcePayments, domain.PaymentCaptured, "o-1", nil, time.Now())
	require.NoError(t, hub.Publish(ctx, event))

	assert.Len(t, w.msgs, 1)
	select {
	case got := <-sub.C:
		assert.Equal(t, event.ID, got.ID)
	default:
		t.Fatal("subscriber did not receive the event")
	}
	assert.Empty(t, other.C)

	// 下游发布失败时仍然推送给本地订阅者
	w.err = errors.New("broker down")
	assert.ErrorContains(t, hub.Publish(ctx, event), "broker down")
	assert.Len(t, sub.C, 1)

	sub.Close()
	sub.Close()
	assert.Zero(t, hub.Subscribers("o-1"))
	assert.Equal(t, 1, hub.Subscribers("o-2"))
}

func TestEventHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewEventHub(LogAdapter{})
	sub := hub.Subscribe("o-1")
	defer sub.Close()

	for i := 0; i < subscriptionBuffer*2; i++ {
		require.NoError(t, hub.Publish(context.Background(),
			domain.NewEvent(domain.SourceOrders, domain.OrderCreated, "o-1", nil, time.Now())))
	}
	assert.Len(t, sub.C, subscriptionBuffer)
}
