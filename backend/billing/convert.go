package billing

import (
	"time"

	"github.com/adlens/adlens/backend/config"
	"github.com/adlens/adlens/backend/models"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

func unixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// entitled statuses keep the paid plan on the user row.
func entitled(status string) bool {
	switch status {
	case "active", "trialing", "past_due":
		return true
	}
	return false
}

func subscriptionFromStripe(sub *stripe.Subscription, userID uuid.UUID, prices config.StripeConfig) models.Subscription {
	out := models.Subscription{
		ID:                sub.ID,
		UserID:            userID,
		StripeCustomerID:  customerID(sub.Customer),
		Plan:              models.PlanFree,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        unixPtr(sub.CanceledAt),
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if plan, ok := prices.PlanForPrice(item.Price.ID); ok {
				out.Plan = models.Plan(plan)
			}
		}
		out.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
	}
	return out
}

// snapshotOf reduces a subscription to what the user row carries.
func snapshotOf(sub models.Subscription) models.PlanSnapshot {
	if !entitled(sub.Status) {
		return models.PlanSnapshot{Plan: models.PlanFree, Status: sub.Status}
	}
	status := sub.Status
	if sub.CancelAtPeriodEnd {
		status = "cancel_at_period_end"
	}
	return models.PlanSnapshot{Plan: sub.Plan, Status: status, RenewsAt: sub.CurrentPeriodEnd}
}

func invoiceFromStripe(inv *stripe.Invoice, userID uuid.UUID) models.Invoice {
	return models.Invoice{
		ID:               inv.ID,
		UserID:           userID,
		StripeCustomerID: customerID(inv.Customer),
		Number:           inv.Number,
		Status:           string(inv.Status),
		AmountDue:        inv.AmountDue,
		AmountPaid:       inv.AmountPaid,
		Currency:         string(inv.Currency),
		HostedInvoiceURL: inv.HostedInvoiceURL,
		InvoicePDF:       inv.InvoicePDF,
		PeriodStart:      unixPtr(inv.PeriodStart),
		PeriodEnd:        unixPtr(inv.PeriodEnd),
		CreatedAt:        time.Unix(inv.Created, 0).UTC(),
	}
}

func paymentMethodFromStripe(pm *stripe.PaymentMethod, userID uuid.UUID, isDefault bool) models.PaymentMethod {
	out := models.PaymentMethod{
		ID:        pm.ID,
		UserID:    userID,
		Brand:     string(pm.Type),
		IsDefault: isDefault,
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = int(pm.Card.ExpMonth)
		out.ExpYear = int(pm.Card.ExpYear)
	}
	return out
}
