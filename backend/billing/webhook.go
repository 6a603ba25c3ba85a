package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adlens/adlens/backend/metrics"
	"github.com/adlens/adlens/backend/models"
	"github.com/adlens/adlens/backend/store"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeHandled   Outcome = "handled"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

const eventTTL = 24 * time.Hour

func eventKey(id string) string {
	return "stripe:event:" + id
}

// HandleWebhook verifies and applies one Stripe event. Each event id is applied at most once per
// eventTTL; a failed attempt releases the id so Stripe's retry is processed.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}

	event, err := s.Provider.ConstructEvent(payload, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		return "", err
	}
	eventType := string(event.Type)

	if !s.claimEvent(ctx, event.ID) {
		metrics.WebhookEvents.WithLabelValues(eventType, string(OutcomeDuplicate)).Inc()
		zap.L().Info("duplicate stripe event", zap.String("event_id", event.ID), zap.String("type", eventType))
		return OutcomeDuplicate, nil
	}

	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		s.releaseEvent(event.ID)
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		return "", fmt.Errorf("handle %s: %w", eventType, err)
	}

	metrics.WebhookEvents.WithLabelValues(eventType, string(outcome)).Inc()
	return outcome, nil
}

func (s *Service) claimEvent(ctx context.Context, id string) bool {
	if s.Redis == nil || id == "" {
		return true
	}
	ok, err := s.Redis.SetNX(ctx, eventKey(id), time.Now().Unix(), eventTTL).Result()
	if err != nil {
		zap.L().Warn("stripe event dedupe unavailable", zap.String("event_id", id), zap.Error(err))
		return true
	}
	return ok
}

func (s *Service) releaseEvent(id string) {
	if s.Redis == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Redis.Del(ctx, eventKey(id)).Err(); err != nil {
		zap.L().Warn("failed to release stripe event", zap.String("event_id", id), zap.Error(err))
	}
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) (Outcome, error) {
	if event.Data == nil {
		return OutcomeIgnored, nil
	}
	raw := event.Data.Raw

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, raw)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		return s.handleSubscription(ctx, raw)

	case "invoice.paid", "invoice.payment_succeeded":
		return s.handleInvoice(ctx, raw, false)

	case "invoice.payment_failed":
		return s.handleInvoice(ctx, raw, true)

	case "payment_method.attached":
		return s.handlePaymentMethodAttached(ctx, raw)

	case "payment_method.detached":
		var pm stripe.PaymentMethod
		if err := json.Unmarshal(raw, &pm); err != nil {
			return "", fmt.Errorf("failed to parse payment_method.detached: %w", err)
		}
		return OutcomeHandled, s.Store.DeletePaymentMethodByID(ctx, pm.ID)

	default:
		zap.L().Info("unhandled stripe event type", zap.String("type", string(event.Type)))
		return OutcomeIgnored, nil
	}
}

// resolveUser finds the account behind a customer, falling back to the userID metadata set at checkout.
func (s *Service) resolveUser(ctx context.Context, customerID, metadataUserID string) (uuid.UUID, bool, error) {
	if customerID != "" {
		id, err := s.Store.UserIDByCustomer(ctx, customerID)
		if err == nil {
			return id, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, false, err
		}
	}

	id, err := uuid.Parse(metadataUserID)
	if err != nil {
		return uuid.Nil, false, nil
	}
	if customerID != "" {
		err := s.Store.UpsertStripeCustomer(ctx, id, customerID)
		if store.IsForeignKeyViolation(err) {
			zap.L().Warn("stripe metadata names a missing user",
				zap.String("user_id", metadataUserID), zap.String("customer_id", customerID))
			return uuid.Nil, false, nil
		}
		if err != nil {
			return uuid.Nil, false, err
		}
	}
	return id, true, nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) (Outcome, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return "", fmt.Errorf("failed to parse checkout.session.completed: %w", err)
	}

	userID := cs.ClientReferenceID
	if userID == "" {
		userID = cs.Metadata["userID"]
	}

	_, ok, err := s.resolveUser(ctx, customerID(cs.Customer), userID)
	if err != nil {
		return "", err
	}
	if !ok {
		zap.L().Warn("checkout session without a known user", zap.String("session_id", cs.ID))
		return OutcomeIgnored, nil
	}
	return OutcomeHandled, nil
}

func (s *Service) handleSubscription(ctx context.Context, raw json.RawMessage) (Outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return "", fmt.Errorf("failed to parse subscription: %w", err)
	}

	userID, ok, err := s.resolveUser(ctx, customerID(sub.Customer), sub.Metadata["userID"])
	if err != nil {
		return "", err
	}
	if !ok {
		zap.L().Warn("subscription for unknown customer", zap.String("subscription_id", sub.ID),
			zap.String("customer_id", customerID(sub.Customer)))
		return OutcomeIgnored, nil
	}

	mirrored := subscriptionFromStripe(&sub, userID, s.Prices)
	if err := s.Store.UpsertSubscription(ctx, mirrored); err != nil {
		return "", err
	}
	if err := s.Store.UpdatePlanSnapshot(ctx, userID, snapshotOf(mirrored)); err != nil {
		return "", err
	}
	return OutcomeHandled, nil
}

func (s *Service) handleInvoice(ctx context.Context, raw json.RawMessage, failed bool) (Outcome, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return "", fmt.Errorf("failed to parse invoice: %w", err)
	}

	userID, ok, err := s.resolveUser(ctx, customerID(inv.Customer), "")
	if err != nil {
		return "", err
	}
	if !ok {
		zap.L().Warn("invoice for unknown customer", zap.String("invoice_id", inv.ID))
		return OutcomeIgnored, nil
	}

	mirrored := invoiceFromStripe(&inv, userID)
	if err := s.Store.UpsertInvoice(ctx, mirrored); err != nil {
		return "", err
	}

	if failed {
		s.notifyPaymentFailed(ctx, userID, inv.CustomerEmail, mirrored)
	}
	return OutcomeHandled, nil
}

func (s *Service) notifyPaymentFailed(ctx context.Context, userID uuid.UUID, email string, inv models.Invoice) {
	if s.Notifier == nil {
		return
	}
	if email == "" {
		user, err := s.Store.GetUserByID(ctx, userID)
		if err != nil {
			zap.L().Warn("no recipient for payment failed email", zap.String("invoice_id", inv.ID), zap.Error(err))
			return
		}
		email = user.Email
	}

	err := s.Notifier.PaymentFailed(ctx, email, inv)
	metrics.Upstream("ses", err)
	if err != nil {
		zap.L().Warn("payment failed email not sent", zap.String("invoice_id", inv.ID), zap.Error(err))
	}
}

func (s *Service) handlePaymentMethodAttached(ctx context.Context, raw json.RawMessage) (Outcome, error) {
	var pm stripe.PaymentMethod
	if err := json.Unmarshal(raw, &pm); err != nil {
		return "", fmt.Errorf("failed to parse payment_method.attached: %w", err)
	}

	userID, ok, err := s.resolveUser(ctx, customerID(pm.Customer), "")
	if err != nil {
		return "", err
	}
	if !ok {
		return OutcomeIgnored, nil
	}

	if err := s.Store.UpsertPaymentMethod(ctx, paymentMethodFromStripe(&pm, userID, false)); err != nil {
		return "", err
	}
	return OutcomeHandled, nil
}
