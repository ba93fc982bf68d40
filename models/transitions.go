package models

import "fmt"

var shippingTransitions = map[ShippingStatus][]ShippingStatus{
	ShippingPending:    {ShippingProcessing, ShippingCancelled},
	ShippingProcessing: {ShippingShipping, ShippingCancelled},
	ShippingShipping:   {ShippingCompleted},
}

// ExpirableShippingStatuses are the order states in which an unpaid Gateway
// payment may still be expired. Later states belong to staff.
func ExpirableShippingStatuses() []ShippingStatus {
	return []ShippingStatus{ShippingPending, ShippingProcessing, ShippingCancelled}
}

// Refund_Failed -> Refund_Pending is the re-approval path.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:       {PaymentCompleted, PaymentExpired},
	PaymentCompleted:     {PaymentRefundPending},
	PaymentRefundPending: {PaymentRefunded, PaymentRefundFailed, PaymentCompleted},
	PaymentRefundFailed:  {PaymentRefundPending},
}

// Failed -> Approved is the re-approval path.
var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundPending:  {RefundApproved, RefundRejected},
	RefundApproved: {RefundProcessed, RefundFailed},
	RefundFailed:   {RefundApproved},
}

// TransitionError names an illegal state change.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition %s -> %s", e.Entity, e.From, e.To)
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func ValidShippingStatus(s ShippingStatus) bool {
	switch s {
	case ShippingPending, ShippingProcessing, ShippingShipping, ShippingCompleted, ShippingCancelled:
		return true
	}
	return false
}

func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentExpired, PaymentRefundPending, PaymentRefunded, PaymentRefundFailed:
		return true
	}
	return false
}

func CanTransitionShipping(from, to ShippingStatus) bool {
	return contains(shippingTransitions[from], to)
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return contains(paymentTransitions[from], to)
}

func CanTransitionRefund(from, to RefundStatus) bool {
	return contains(refundTransitions[from], to)
}

// TransitionTo moves the order to the given shipping status or returns a
// *TransitionError.
func (o *Order) TransitionTo(to ShippingStatus) error {
	if !CanTransitionShipping(o.ShippingStatus, to) {
		return &TransitionError{Entity: "shipping", From: string(o.ShippingStatus), To: string(to)}
	}
	o.ShippingStatus = to
	return nil
}

func (p *Payment) TransitionTo(to PaymentStatus) error {
	if !CanTransitionPayment(p.Status, to) {
		return &TransitionError{Entity: "payment", From: string(p.Status), To: string(to)}
	}
	p.Status = to
	return nil
}

func (r *Refund) TransitionTo(to RefundStatus) error {
	if !CanTransitionRefund(r.Status, to) {
		return &TransitionError{Entity: "refund", From: string(r.Status), To: string(to)}
	}
	r.Status = to
	return nil
}
