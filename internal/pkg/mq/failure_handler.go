package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"fulfillment/internal/pkg/logger"
)

// 死信消息携带的头部
const (
	HeaderOriginalTopic     = "dlt-original-topic"
	HeaderOriginalPartition = "dlt-original-partition"
	HeaderOriginalOffset    = "dlt-original-offset"
	HeaderExceptionFqcn     = "dlt-exception-fqcn"
	HeaderExceptionMessage  = "dlt-exception-message"
)

// FailureHandler 把处理失败的消息转投到死信主题
type FailureHandler struct {
	dlt MessageWriter
}

func NewFailureHandler(dlt MessageWriter) *FailureHandler {
	return &FailureHandler{dlt: dlt}
}

// Handle 转投死信；转投本身失败时只记录日志，由调用方继续提交 offset
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
	)

	dead := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
	if err := h.dlt.WriteMessages(ctx, dead); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("original_topic", msg.Topic).
			Int64("original_offset", msg.Offset).
			Msg("CRITICAL: failed to forward message to dead letter topic")
		return
	}
	logger.Ctx(ctx).Warn().Err(cause).
		Str("original_topic", msg.Topic).
		Int64("original_offset", msg.Offset).
		Msg("Message forwarded to dead letter topic")
}
