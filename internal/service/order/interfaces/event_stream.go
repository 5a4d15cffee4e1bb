package interfaces

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/domain"
	"fulfillment/internal/service/order/infrastructure/adapter"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由上游网关处理
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statusSnapshot 是连接建立后的第一帧，之后每一帧都是一个 domain.Event
type statusSnapshot struct {
	OrderID       string       `json:"orderId"`
	Status        domain.State `json:"status"`
	FailureReason string       `json:"failureReason,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// EventStreamHandler 通过 WebSocket 把订单的领域事件推送给客户端
type EventStreamHandler struct {
	orders domain.OrderRepository
	hub    *adapter.EventHub
	tracer trace.Tracer
}

func NewEventStreamHandler(orders domain.OrderRepository, hub *adapter.EventHub, tracer trace.Tracer) *EventStreamHandler {
	return &EventStreamHandler{orders: orders, hub: hub, tracer: tracer}
}

func (h *EventStreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /orders/{id}/events", h.serveWs)
}

func (h *EventStreamHandler) serveWs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ws.OrderEvents", trace.WithSpanKind(trace.SpanKindServer))
	orderID := r.PathValue("id")
	span.SetAttributes(attribute.String("order.id", orderID))

	// 先订阅再读取快照，两者之间发布的事件不会丢失
	sub := h.hub.Subscribe(orderID)
	order, err := h.orders.FindByID(ctx, orderID)
	if err != nil {
		sub.Close()
		status := StatusFor(err)
		span.RecordError(err)
		span.End()
		writeJSON(w, status, errorBody{Message: messageFor(status, err)})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		span.RecordError(err)
		span.End()
		logger.Ctx(ctx).Warn().Err(err).Str("order", orderID).Msg("WebSocket upgrade failed")
		return
	}
	span.End()

	logger.Ctx(ctx).Info().Str("order", orderID).Msg("Order event stream opened")
	done := make(chan struct{})
	go readPump(ctx, conn, done)
	writePump(conn, sub, done, statusSnapshot{
		OrderID:       order.ID,
		Status:        order.State,
		FailureReason: order.FailureReason,
		UpdatedAt:     order.UpdatedAt,
	})
	logger.Ctx(ctx).Info().Str("order", orderID).Msg("Order event stream closed")
}

// writePump 独占连接的写入：快照、事件和心跳
func writePump(conn *websocket.Conn, sub *adapter.Subscription, done <-chan struct{}, snapshot statusSnapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}
	for {
		select {
		case event, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump 只处理心跳和关闭帧，客户端不发送业务消息
func readPump(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				logger.Ctx(ctx).Debug().Err(err).Msg("Order event stream read ended")
			}
			return
		}
	}
}
