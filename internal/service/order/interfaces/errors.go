package interfaces

import (
	"context"
	"errors"
	"net/http"

	invapp "fulfillment/internal/service/inventory/application"
	invdomain "fulfillment/internal/service/inventory/domain"
	"fulfillment/internal/service/order/domain"
)

// StatusFor 把错误类型映射为 HTTP 状态码。
// 4xx 不应重试；503 可以重试；500 需要人工介入。
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, invdomain.ErrInvalidRequest),
		errors.Is(err, domain.ErrAdmissionDenied):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTransitionRejected),
		errors.Is(err, domain.ErrOrderExists),
		errors.Is(err, domain.ErrRequestInFlight):
		return http.StatusConflict
	case invapp.IsInconsistent(err):
		return http.StatusInternalServerError
	case errors.Is(err, invdomain.ErrLedgerUnavailable),
		errors.Is(err, invdomain.ErrReservationInFlight),
		errors.Is(err, invdomain.ErrJournalUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor 只对客户端错误返回具体原因，服务端错误不暴露内部细节
func messageFor(status int, err error) string {
	switch {
	case status < http.StatusInternalServerError:
		return err.Error()
	case status == http.StatusServiceUnavailable:
		return "Service temporarily unavailable, retry later"
	default:
		return "Internal error"
	}
}
