package models

type CreateOrderRequest struct {
	ShippingInfo  ShippingInfo  `json:"shippingInfo" validate:"required"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required"`
	Items         []CartLine    `json:"items" validate:"dive"`
	ShippingFee   *int64        `json:"shippingFee,omitempty" validate:"omitempty,gte=0"`
	BankCode      string        `json:"bankCode,omitempty" validate:"omitempty,alphanum,max=20"`
	Locale        string        `json:"locale,omitempty" validate:"omitempty,oneof=vn en"`
	ClientIP      string        `json:"-"`
}

type CreateOrderResponse struct {
	Order      *Order   `json:"order"`
	Payment    *Payment `json:"payment"`
	PaymentURL string   `json:"paymentUrl,omitempty"`
}

type ChangeOrderStatusRequest struct {
	ShippingStatus *ShippingStatus `json:"shippingStatus,omitempty"`
	PaymentStatus  *PaymentStatus  `json:"paymentStatus,omitempty"`
}

type ChangePaymentMethodRequest struct {
	PaymentMethod PaymentMethod `json:"paymentMethod" binding:"required"`
}

type RepayRequest struct {
	BankCode string `json:"bankCode,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

type OrderDetail struct {
	Order   *Order      `json:"order"`
	Payment *Payment    `json:"payment"`
	Refund  *RefundInfo `json:"refundInfo,omitempty"`
}

type CancelOrderResponse struct {
	Order            *Order   `json:"order"`
	Payment          *Payment `json:"payment"`
	RefundApplicable bool     `json:"refundApplicable"`
}

type MetaData struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
}

type OrderListResponse struct {
	Orders []OrderDetail `json:"orders"`
	Meta   MetaData      `json:"meta"`
}

type RefundListResponse struct {
	Refunds []Refund `json:"refunds"`
	Meta    MetaData `json:"meta"`
}
