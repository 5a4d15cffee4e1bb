package domain

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	invdomain "fulfillment/internal/service/inventory/domain"
)

const (
	PaymentSucceeded = "SUCCEEDED"
	ShipmentCreated  = "CREATED"
)

type Payment struct {
	Status    string    `json:"status"`
	PaymentID string    `json:"paymentId"`
	PaidAt    time.Time `json:"paidAt"`
}

type Shipment struct {
	Status         string    `json:"status"`
	TrackingNumber string    `json:"trackingNumber"`
	ShippedAt      time.Time `json:"shippedAt"`
}

// WorkflowPayload 是编排器在各步骤之间传递、逐步累积的数据。
// 每个步骤读取自己需要的字段，原样保留其余字段。
type WorkflowPayload struct {
	OrderID     string                       `json:"orderId,omitempty"`
	UserID      string                       `json:"userId,omitempty"`
	Amount      *decimal.Decimal             `json:"amount,omitempty"`
	Items       []Item                       `json:"items,omitempty"`
	ClientToken string                       `json:"clientToken,omitempty"`
	Payment     *Payment                     `json:"payment,omitempty"`
	Reservation *invdomain.ReservationResult `json:"reservation,omitempty"`
	Shipment    *Shipment                    `json:"shipment,omitempty"`
}

// DecodePayload 严格解码：未知字段和多余的 JSON 值都视为无效输入
func DecodePayload(r io.Reader) (*WorkflowPayload, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var p WorkflowPayload
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrapf(ErrInvalidRequest, "decode payload: %v", err)
	}
	if dec.More() {
		return nil, errors.Wrap(ErrInvalidRequest, "payload must be a single JSON object")
	}
	return &p, nil
}

// DecodePayloadBytes 是 DecodePayload 的字节版本
func DecodePayloadBytes(b []byte) (*WorkflowPayload, error) {
	return DecodePayload(bytes.NewReader(b))
}

// Clone 返回一个浅拷贝，步骤在拷贝上写入自己的输出
func (p *WorkflowPayload) Clone() *WorkflowPayload {
	cp := *p
	return &cp
}

// LineItems 把订单商品转换为预占使用的商品行
func (p *WorkflowPayload) LineItems() []invdomain.LineItem {
	out := make([]invdomain.LineItem, len(p.Items))
	for i, it := range p.Items {
		out[i] = invdomain.LineItem{SKU: it.SKU, Qty: it.Qty}
	}
	return out
}
