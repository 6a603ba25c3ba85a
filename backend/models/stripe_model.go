package models

import (
	"time"

	"github.com/google/uuid"
)

type StripeCustomer struct {
	UserID           uuid.UUID `json:"userId"`
	StripeCustomerID string    `json:"stripeCustomerId"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Subscription mirrors the billing provider's subscription state. Status is
// 'active', 'trialing', 'past_due', 'canceled', etc.
type Subscription struct {
	ID                 string     `json:"id"`
	UserID             uuid.UUID  `json:"userId"`
	StripeCustomerID   string     `json:"stripeCustomerId"`
	PriceID            string     `json:"priceId"`
	Plan               Plan       `json:"plan"`
	Status             string     `json:"status"`
	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time `json:"canceledAt,omitempty"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type PaymentMethod struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Brand     string    `json:"brand"`
	Last4     string    `json:"last4"`
	ExpMonth  int       `json:"expMonth"`
	ExpYear   int       `json:"expYear"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
}

type Invoice struct {
	ID               string     `json:"id"`
	UserID           uuid.UUID  `json:"userId"`
	StripeCustomerID string     `json:"stripeCustomerId"`
	Number           string     `json:"number"`
	Status           string     `json:"status"`
	AmountDue        int64      `json:"amountDue"`
	AmountPaid       int64      `json:"amountPaid"`
	Currency         string     `json:"currency"`
	HostedInvoiceURL string     `json:"hostedInvoiceUrl"`
	InvoicePDF       string     `json:"invoicePdf"`
	PeriodStart      *time.Time `json:"periodStart,omitempty"`
	PeriodEnd        *time.Time `json:"periodEnd,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

type CheckoutRequest struct {
	Plan Plan `json:"plan"`
}

type AttachPaymentMethod struct {
	PaymentMethodID string `json:"paymentMethodId"`
	MakeDefault     bool   `json:"makeDefault"`
}
