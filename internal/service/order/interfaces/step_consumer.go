package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/pkg/mq"
	"fulfillment/internal/service/order/domain"
)

// 回复消息的头部
const (
	HeaderStep      = "step"
	HeaderOutcome   = "outcome"
	HeaderStatus    = "status"
	HeaderRetryable = "retryable"

	OutcomeOK    = "OK"
	OutcomeError = "ERROR"
)

// MessageReader 是 kafka.Reader 中被消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StepConsumerAdapter 是一个驱动适配器：从步骤请求主题读取消息，
// 按消息头 step 调用对应的步骤，把输出写到结果主题。
// 步骤失败时回复 outcome=ERROR，由编排器决定是否重试；
// 无法解码或步骤未知的消息交给 FailureHandler 转入死信主题。
type StepConsumerAdapter struct {
	reader         MessageReader
	results        mq.MessageWriter
	steps          map[string]StepFunc
	failureHandler *mq.FailureHandler
	tracer         trace.Tracer

	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewStepConsumerAdapter(reader MessageReader, results mq.MessageWriter, steps map[string]StepFunc, failureHandler *mq.FailureHandler, tracer trace.Tracer) *StepConsumerAdapter {
	return &StepConsumerAdapter{
		reader:         reader,
		results:        results,
		steps:          steps,
		failureHandler: failureHandler,
		tracer:         tracer,
	}
}

// Start 开始监听。这是一个长期运行的方法，ctx 取消或 Stop 时退出。
func (a *StepConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Msg("Step consumer started")
		for !a.stopped.Load() {
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || a.stopped.Load() {
					logger.Ctx(ctx).Info().Msg("Step consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("Could not read message, retrying")
				time.Sleep(time.Second)
				continue
			}

			msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			if err := a.HandleMessage(msgCtx, msg); err != nil {
				a.failureHandler.Handle(msgCtx, msg, err)
			}

			// 无论成功或失败（已移交死信主题），都提交 offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit message")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者
func (a *StepConsumerAdapter) Stop(ctx context.Context) {
	a.stopped.Store(true)
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Failed to close step reader")
	}
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("Step consumer stopped")
}

// HandleMessage 处理一条步骤请求。返回的错误意味着消息应进入死信主题，
// 步骤本身的错误通过回复交给编排器，不会返回。
func (a *StepConsumerAdapter) HandleMessage(ctx context.Context, msg kafka.Message) error {
	name := mq.Header(msg.Headers, HeaderStep)
	ctx, span := a.tracer.Start(ctx, "consumer.Step", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("workflow.step", name),
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		))
	defer span.End()

	step, ok := a.steps[name]
	if !ok {
		err := errors.Errorf("unknown workflow step %q", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown step")
		return err
	}

	payload, err := domain.DecodePayloadBytes(msg.Value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		return err
	}

	out, stepErr := step(ctx, payload)
	if stepErr == nil {
		return a.reply(ctx, name, payload.OrderID, out,
			kafka.Header{Key: HeaderOutcome, Value: []byte(OutcomeOK)})
	}

	status := StatusFor(stepErr)
	retryable := status == http.StatusServiceUnavailable
	span.RecordError(stepErr)
	span.SetStatus(codes.Error, stepErr.Error())
	span.SetAttributes(attribute.Int("step.status", status), attribute.Bool("step.retryable", retryable))
	logger.Ctx(ctx).Warn().Err(stepErr).Str("step", name).Str("order", payload.OrderID).
		Int("status", status).Bool("retryable", retryable).Msg("Step failed, replying with error outcome")

	// 不一致的预占要把记录交给编排器用于对账，其余错误只回复错误信息
	var body any = errorReply{OrderID: payload.OrderID, Message: messageFor(status, stepErr)}
	if out != nil {
		body = out
	}
	return a.reply(ctx, name, payload.OrderID, body,
		kafka.Header{Key: HeaderOutcome, Value: []byte(OutcomeError)},
		kafka.Header{Key: HeaderStatus, Value: []byte(strconv.Itoa(status))},
		kafka.Header{Key: HeaderRetryable, Value: []byte(strconv.FormatBool(retryable))},
	)
}

type errorReply struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

func (a *StepConsumerAdapter) reply(ctx context.Context, step, orderID string, body any, headers ...kafka.Header) error {
	value, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal step output")
	}
	headers = append([]kafka.Header{{Key: HeaderStep, Value: []byte(step)}}, headers...)
	err = mq.ProduceMessage(ctx, a.results, []byte(orderID), value, headers...)
	return errors.Wrapf(err, "reply for step %s", step)
}
