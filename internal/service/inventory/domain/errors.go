package domain

import "errors"

var (
	// ErrInvalidRequest 请求格式错误，在任何账本操作之前被拒绝
	ErrInvalidRequest = errors.New("invalid reservation request")
	// ErrInsufficientStock 条件扣减的前置条件不满足，是业务上的预期结果
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnknownSKU 账本中没有该 SKU，条件写无法匹配，同样按业务拒绝处理
	ErrUnknownSKU = errors.New("unknown sku")
	// ErrLedgerUnavailable 账本暂时不可用，由外部编排器决定是否重试
	ErrLedgerUnavailable = errors.New("stock ledger unavailable")
	// ErrReservationInconsistent 补偿本身失败，必须人工或自动对账
	ErrReservationInconsistent = errors.New("reservation inconsistent")
	// ErrReservationInFlight 同一订单的另一次预占仍在进行中
	ErrReservationInFlight = errors.New("reservation already in flight")
	// ErrClaimExpired 占位超过租约仍未写入结果，之前的执行可能已经扣减了库存
	ErrClaimExpired = errors.New("reservation claim expired")
	// ErrJournalUnavailable 预占记录无法读写，由外部编排器决定是否重试
	ErrJournalUnavailable = errors.New("reservation journal unavailable")
)

// IsRejection 判断账本错误是否是条件写被拒绝（业务结果）而非基础设施故障
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrUnknownSKU)
}
