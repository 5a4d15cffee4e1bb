package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	invdomain "fulfillment/internal/service/inventory/domain"
	"fulfillment/internal/service/order/domain"
	"fulfillment/internal/service/order/domain/port"
)

func newServer(t *testing.T, stock map[string]int64, reserver port.InventoryReserver) (*httptest.Server, *testEnv) {
	t.Helper()
	env := newTestEnv(t, stock, reserver)
	mux := http.NewServeMux()
	NewOrderHandler(env.svc, noop.NewTracerProvider().Tracer(""), prometheus.NewRegistry()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, env
}

func post(t *testing.T, url, user, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderAuthenticatedUser, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

const orderBody = `{"items":[{"sku":"A","qty":2,"price":5}],"amount":10,"clientToken":"tok-1"}`

// createAndPay 创建订单并执行支付步骤，返回支付步骤的输出
func createAndPay(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := post(t, srv.URL+"/orders", "alice", orderBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created struct {
		OrderID string `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	resp, paid := post(t, srv.URL+"/steps/payment", "", fmt.Sprintf(`{"orderId":%q,"amount":10,"items":[{"sku":"A","qty":2,"price":5}]}`, created.OrderID))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(paid))
	return string(paid)
}

func TestCreateOrderEndpoint(t *testing.T) {
	srv, env := newServer(t, nil, nil)

	resp, body := post(t, srv.URL+"/orders", "alice", orderBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.OrderID)
	assert.Equal(t, "CREATED", created.Status)

	order, err := env.orders.FindByID(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "alice", order.UserID)

	// 相同 clientToken 返回同一个订单
	resp, body = post(t, srv.URL+"/orders", "alice", orderBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, string(body), created.OrderID)
}

func TestCreateOrderEndpoint_AnonymousIdentity(t *testing.T) {
	srv, env := newServer(t, nil, nil)

	resp, _ := post(t, srv.URL+"/orders", "", `{"items":[{"sku":"A","qty":1,"price":1}],"amount":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "anonymous", env.workflow.last().UserID)
}

func TestCreateOrderEndpoint_BadRequests(t *testing.T) {
	srv, _ := newServer(t, nil, nil)

	tests := map[string]string{
		"malformed json": `{"items":`,
		"unknown field":  `{"items":[{"sku":"A","qty":1}],"amount":1,"coupon":"FREE"}`,
		"missing items":  `{"amount":1}`,
		"zero quantity":  `{"items":[{"sku":"A","qty":0}],"amount":1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, data := post(t, srv.URL+"/orders", "alice", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(data), `"message"`)
		})
	}
}

func TestStepEndpoints_FullWorkflow(t *testing.T) {
	srv, env := newServer(t, map[string]int64{"A": 5}, nil)

	resp, _ := post(t, srv.URL+"/orders", "alice", orderBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	input, err := json.Marshal(env.workflow.last())
	require.NoError(t, err)

	resp, paid := post(t, srv.URL+"/steps/payment", "", string(input))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(paid))
	assert.Contains(t, string(paid), `"paymentId"`)

	resp, reserved := post(t, srv.URL+"/steps/reservation", "", string(paid))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(reserved))
	out, err := domain.DecodePayloadBytes(reserved)
	require.NoError(t, err)
	assert.Equal(t, invdomain.StatusReserved, out.Reservation.Status)
	assert.NotNil(t, out.Payment)

	resp, shipped := post(t, srv.URL+"/steps/shipping", "", string(reserved))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(shipped))
	assert.Contains(t, string(shipped), `"trackingNumber":"TRK-`)
}

func TestStepEndpoints_ErrorStatuses(t *testing.T) {
	t.Run("unknown field is rejected", func(t *testing.T) {
		srv, _ := newServer(t, nil, nil)
		resp, _ := post(t, srv.URL+"/steps/payment", "", `{"orderId":"o-1","amount":1,"extra":1}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown order", func(t *testing.T) {
		srv, _ := newServer(t, nil, nil)
		resp, _ := post(t, srv.URL+"/steps/payment", "", `{"orderId":"missing","amount":1}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("shipping an unreserved order conflicts", func(t *testing.T) {
		srv, env := newServer(t, nil, nil)
		resp, _ := post(t, srv.URL+"/orders", "alice", orderBody)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		forged := env.workflow.last().Clone()
		forged.Reservation = &invdomain.ReservationResult{OrderID: forged.OrderID, Status: invdomain.StatusReserved}
		forged.Payment = &domain.Payment{Status: domain.PaymentSucceeded, PaymentID: "pay_forged"}
		body, err := json.Marshal(forged)
		require.NoError(t, err)

		resp, _ = post(t, srv.URL+"/steps/shipping", "", string(body))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("ledger unavailable is retryable", func(t *testing.T) {
		srv, _ := newServer(t, nil, stubReserver{
			err: fmt.Errorf("%w: connection refused", invdomain.ErrLedgerUnavailable),
		})
		resp, data := post(t, srv.URL+"/steps/reservation", "", createAndPay(t, srv))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.NotContains(t, string(data), "connection refused")
	})

	t.Run("inconsistent reservation returns the record", func(t *testing.T) {
		srv, _ := newServer(t, nil, stubReserver{
			result: &invdomain.ReservationResult{
				Status:     invdomain.StatusInconsistent,
				Unrestored: []invdomain.LineItem{{SKU: "A", Qty: 2}},
			},
			err: invdomain.ErrReservationInconsistent,
		})
		resp, data := post(t, srv.URL+"/steps/reservation", "", createAndPay(t, srv))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, string(data), `"status":"RESERVATION_INCONSISTENT"`)
		assert.Contains(t, string(data), `"unrestored"`)
	})

	t.Run("reserving an unpaid order conflicts", func(t *testing.T) {
		srv, env := newServer(t, map[string]int64{"A": 5}, nil)
		resp, _ := post(t, srv.URL+"/orders", "alice", orderBody)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		body, err := json.Marshal(env.workflow.last())
		require.NoError(t, err)

		resp, _ = post(t, srv.URL+"/steps/reservation", "", string(body))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown step", func(t *testing.T) {
		srv, _ := newServer(t, nil, nil)
		resp, _ := post(t, srv.URL+"/steps/refund", "", `{}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestOperationalEndpoints(t *testing.T) {
	srv, _ := newServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIdentityFrom(t *testing.T) {
	assert.Equal(t, "anonymous", IdentityFrom(context.Background()))
	ctx := context.WithValue(context.Background(), identityKey{}, "alice")
	assert.Equal(t, "alice", IdentityFrom(ctx))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{errors.Wrap(domain.ErrInvalidRequest, "items"), http.StatusBadRequest},
		{invdomain.ErrInvalidRequest, http.StatusBadRequest},
		{domain.ErrAdmissionDenied, http.StatusBadRequest},
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{domain.ErrTransitionRejected, http.StatusConflict},
		{domain.ErrRequestInFlight, http.StatusConflict},
		{fmt.Errorf("%w: order o-1", invdomain.ErrReservationInconsistent), http.StatusInternalServerError},
		{invdomain.ErrLedgerUnavailable, http.StatusServiceUnavailable},
		{invdomain.ErrReservationInFlight, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: record reservation o-1: %w", invdomain.ErrJournalUnavailable, errors.New("deadlock")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}

	assert.Equal(t, "Internal error", messageFor(http.StatusInternalServerError, errors.New("db password wrong")))
	assert.Equal(t, "bad", messageFor(http.StatusBadRequest, errors.New("bad")))
}
