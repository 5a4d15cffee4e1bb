package interfaces

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"fulfillment/internal/service/order/domain"
)

func newStreamServer(t *testing.T, env *testEnv) string {
	t.Helper()
	mux := http.NewServeMux()
	NewEventStreamHandler(env.orders, env.hub, noop.NewTracerProvider().Tracer("")).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEventStream_PushesSnapshotThenEvents(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"A": 3}, nil)
	input := createOrder(t, env)
	url := newStreamServer(t, env)

	conn, resp, err := websocket.DefaultDialer.Dial(url+"/orders/"+input.OrderID+"/events", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var snapshot statusSnapshot
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, input.OrderID, snapshot.OrderID)
	assert.Equal(t, domain.StateCreated, snapshot.Status)

	paid, err := env.svc.CapturePayment(context.Background(), input)
	require.NoError(t, err)
	_, err = env.svc.ReserveInventory(context.Background(), paid)
	require.NoError(t, err)

	var events []string
	for i := 0; i < 2; i++ {
		var event struct {
			DetailType string `json:"detailType"`
			OrderID    string `json:"orderId"`
		}
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, input.OrderID, event.OrderID)
		events = append(events, event.DetailType)
	}
	assert.Equal(t, []string{domain.PaymentCaptured, domain.InventoryReserved}, events)
}

func TestEventStream_UnknownOrder(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	url := newStreamServer(t, env)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/orders/missing/events", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, env.hub.Subscribers("missing"))
}

func TestEventStream_ClientCloseUnsubscribes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	input := createOrder(t, env)
	url := newStreamServer(t, env)

	conn, resp, err := websocket.DefaultDialer.Dial(url+"/orders/"+input.OrderID+"/events", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, env.hub.Subscribers(input.OrderID))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return env.hub.Subscribers(input.OrderID) == 0 }, 2*time.Second, 10*time.Millisecond)
}
