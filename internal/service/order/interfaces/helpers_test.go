package interfaces

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	invapp "fulfillment/internal/service/inventory/application"
	invdomain "fulfillment/internal/service/inventory/domain"
	invinfra "fulfillment/internal/service/inventory/infrastructure"
	"fulfillment/internal/service/order/application"
	"fulfillment/internal/service/order/domain"
	"fulfillment/internal/service/order/domain/port"
	"fulfillment/internal/service/order/infrastructure"
	"fulfillment/internal/service/order/infrastructure/adapter"
)

type stubReserver struct {
	result *invdomain.ReservationResult
	err    error
}

func (s stubReserver) Reserve(context.Context, string, []invdomain.LineItem) (*invdomain.ReservationResult, error) {
	return s.result, s.err
}

type capturingWorkflow struct {
	mu     sync.Mutex
	inputs []*domain.WorkflowPayload
}

func (w *capturingWorkflow) StartWorkflow(_ context.Context, input *domain.WorkflowPayload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputs = append(w.inputs, input)
	return nil
}

func (w *capturingWorkflow) last() *domain.WorkflowPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inputs[len(w.inputs)-1]
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type testEnv struct {
	svc      *application.OrderApplicationService
	orders   *infrastructure.MemoryOrderRepository
	workflow *capturingWorkflow
	hub      *adapter.EventHub
}

// newTestEnv 用内存实现组装应用服务；reserver 为 nil 时使用真实的预占引擎
func newTestEnv(t *testing.T, stock map[string]int64, reserver port.InventoryReserver) *testEnv {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("")
	if reserver == nil {
		ledger := invinfra.NewMemoryLedger()
		for sku, n := range stock {
			require.NoError(t, ledger.Upsert(context.Background(), &invdomain.StockRecord{SKU: sku, Available: n}))
		}
		engine := invapp.NewReservationEngine(ledger, tracer, nil, time.Second)
		reserver = invapp.NewReservationService(engine, invinfra.NewMemoryReservationJournal())
	}

	env := &testEnv{
		orders:   infrastructure.NewMemoryOrderRepository(),
		workflow: &capturingWorkflow{},
		hub:      adapter.NewEventHub(adapter.LogAdapter{}),
	}
	env.svc = application.NewOrderApplicationService(application.Deps{
		Orders:    env.orders,
		Tokens:    infrastructure.NewMemoryClientTokenStore(),
		Publisher: env.hub,
		Workflow:  env.workflow,
		Payments:  adapter.NewSimulatedPaymentAdapter(),
		Inventory: reserver,
	}, tracer, 5*time.Second)
	return env
}
