package domain

import "errors"

var (
	// ErrInvalidRequest 请求或步骤输入不合法，重试没有意义
	ErrInvalidRequest = errors.New("invalid request")
	// ErrOrderExists 条件插入命中了已有订单
	ErrOrderExists = errors.New("order already exists")
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrTransitionRejected 订单当前状态不在允许的前置状态中
	ErrTransitionRejected = errors.New("order status transition rejected")
	// ErrAdmissionDenied 订单被准入规则拒绝
	ErrAdmissionDenied = errors.New("order rejected by admission policy")
	// ErrRequestInFlight 同一 clientToken 的请求还没有写完订单
	ErrRequestInFlight = errors.New("request with this client token is still in progress")
)
