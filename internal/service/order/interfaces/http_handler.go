package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/service/order/application"
	"fulfillment/internal/service/order/domain"
)

const (
	// HeaderAuthenticatedUser 由上游的 JWT 鉴权网关写入
	HeaderAuthenticatedUser = "X-Authenticated-User"
	anonymousUser           = "anonymous"
	maxBodyBytes            = 1 << 20
)

type identityKey struct{}

// IdentityFrom 返回请求的调用方身份
func IdentityFrom(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey{}).(string); ok && id != "" {
		return id
	}
	return anonymousUser
}

// OrderHandler 封装了下单和工作流步骤的 HTTP 处理器
type OrderHandler struct {
	service  *application.OrderApplicationService
	steps    map[string]StepFunc
	tracer   trace.Tracer
	gatherer prometheus.Gatherer
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例；gatherer 为 nil 时使用默认注册表
func NewOrderHandler(service *application.OrderApplicationService, tracer trace.Tracer, gatherer prometheus.Gatherer) *OrderHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &OrderHandler{
		service:  service,
		steps:    NewStepRouter(service),
		tracer:   tracer,
		gatherer: gatherer,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("POST /orders", h.instrument("http.CreateOrder", h.createOrder))
	for name, step := range h.steps {
		mux.Handle("POST /steps/"+name, h.instrument("http.Step."+name, h.stepHandler(step)))
	}
}

// instrument 提取上游的追踪上下文，写入调用方身份和请求级 logger，并开启一个 span
func (h *OrderHandler) instrument(spanName string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := h.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		user := r.Header.Get(HeaderAuthenticatedUser)
		if user == "" {
			user = anonymousUser
		}
		ctx = context.WithValue(ctx, identityKey{}, user)
		ctx = logger.WithContext(ctx, map[string]string{"path": r.URL.Path, "user": user})
		span.SetAttributes(attribute.String("user.id", user))

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next(w, r.WithContext(ctx))
	})
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req application.CreateOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Invalid JSON body"})
		return
	}
	req.UserID = IdentityFrom(ctx)

	resp, err := h.service.CreateOrder(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) stepHandler(step StepFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, err := domain.DecodePayload(r.Body)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}

		out, err := step(ctx, payload)
		if err != nil {
			// 不一致的预占需要把记录交给编排器用于对账
			if out != nil && out.Reservation != nil {
				h.recordError(ctx, err)
				writeJSON(w, StatusFor(err), out)
				return
			}
			h.writeError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type errorBody struct {
	Message string `json:"message"`
}

func (h *OrderHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := h.recordError(ctx, err)
	writeJSON(w, status, errorBody{Message: messageFor(status, err)})
}

func (h *OrderHandler) recordError(ctx context.Context, err error) int {
	status := StatusFor(err)
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, err.Error())
		logger.Ctx(ctx).Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logger.Ctx(ctx).Info().Err(err).Int("status", status).Msg("Request rejected")
	}
	return status
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
