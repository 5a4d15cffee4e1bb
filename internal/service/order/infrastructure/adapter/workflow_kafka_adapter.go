package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"fulfillment/internal/pkg/mq"
	"fulfillment/internal/service/order/domain"
)

// HeaderStep 指明消息要执行的工作流步骤
const HeaderStep = "step"

// 工作流的第一个步骤
const firstStep = "payment"

// WorkflowKafkaAdapter 实现了 port.WorkflowStarter：
// 把工作流输入作为第一个步骤请求写入编排器监听的主题
type WorkflowKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewWorkflowKafkaAdapter(writer mq.MessageWriter) *WorkflowKafkaAdapter {
	return &WorkflowKafkaAdapter{writer: writer}
}

func (a *WorkflowKafkaAdapter) StartWorkflow(ctx context.Context, input *domain.WorkflowPayload) error {
	body, err := json.Marshal(input)
	if err != nil {
		return errors.Wrap(err, "marshal workflow input")
	}
	err = mq.ProduceMessage(ctx, a.writer, []byte(input.OrderID), body,
		kafka.Header{Key: HeaderStep, Value: []byte(firstStep)},
	)
	return errors.Wrapf(err, "start workflow for order %s", input.OrderID)
}
