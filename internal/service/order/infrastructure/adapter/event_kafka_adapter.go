package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"fulfillment/internal/pkg/mq"
	"fulfillment/internal/service/order/domain"
)

// HeaderEventType 携带事件类型，消费方不解码消息体即可过滤
const HeaderEventType = "event-type"

// EventKafkaAdapter 实现了 port.EventPublisher 接口，以 orderId 作为消息 key
type EventKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewEventKafkaAdapter(writer mq.MessageWriter) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

func (a *EventKafkaAdapter) Publish(ctx context.Context, event *domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", event.DetailType)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(event.OrderID), body,
		kafka.Header{Key: HeaderEventType, Value: []byte(event.DetailType)},
		kafka.Header{Key: "event-source", Value: []byte(event.Source)},
	)
}
