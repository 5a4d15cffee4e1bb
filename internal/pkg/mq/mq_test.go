package mq

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaHeaderCarrier_SetOverwrites(t *testing.T) {
	c := KafkaHeaderCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("baggage", "x=1")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent", "baggage"}, c.Keys())
	assert.Equal(t, "", c.Get("missing"))
}

func TestProduceMessage_InjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	w := &recordingWriter{}
	require.NoError(t, ProduceMessage(ctx, w, []byte("order-1"), []byte(`{}`), kafka.Header{Key: "step", Value: []byte("payment")}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "payment", Header(msg.Headers, "step"))
	assert.Contains(t, Header(msg.Headers, "traceparent"), traceID.String())

	extracted := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), msg.Headers))
	assert.Equal(t, traceID, extracted.TraceID())
}

func TestFailureHandler_ForwardsWithOriginHeaders(t *testing.T) {
	w := &recordingWriter{}
	h := NewFailureHandler(w)

	h.Handle(context.Background(), kafka.Message{
		Topic:     "fulfillment-step-requests",
		Partition: 2,
		Offset:    42,
		Key:       []byte("order-1"),
		Value:     []byte("payload"),
	}, errors.New("boom"))

	require.Len(t, w.msgs, 1)
	dead := w.msgs[0]
	assert.Equal(t, "order-1", string(dead.Key))
	assert.Equal(t, "fulfillment-step-requests", Header(dead.Headers, HeaderOriginalTopic))
	assert.Equal(t, "2", Header(dead.Headers, HeaderOriginalPartition))
	assert.Equal(t, "42", Header(dead.Headers, HeaderOriginalOffset))
	assert.Equal(t, "boom", Header(dead.Headers, HeaderExceptionMessage))
}

func TestFailureHandler_SwallowsWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	h := NewFailureHandler(w)

	assert.NotPanics(t, func() {
		h.Handle(context.Background(), kafka.Message{Topic: "t"}, errors.New("boom"))
	})
}
