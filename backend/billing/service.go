// Package billing keeps the local billing mirror in step with Stripe.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adlens/adlens/backend/config"
	"github.com/adlens/adlens/backend/metrics"
	"github.com/adlens/adlens/backend/models"
	"github.com/adlens/adlens/backend/notify"
	"github.com/adlens/adlens/backend/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("billing is not configured")
	ErrUnknownPlan   = errors.New("unknown plan")
)

const invoiceSyncLimit = 24

type Service struct {
	Store       *store.Store
	Provider    Provider
	Redis       *redis.Client
	Notifier    notify.Notifier
	Prices      config.StripeConfig
	FrontendURL string
}

func (s *Service) Enabled() bool {
	return s != nil && s.Provider != nil
}

// EnsureCustomer returns the user's Stripe customer id, creating and recording one on first use.
func (s *Service) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}

	id, err := s.Store.GetStripeCustomerID(ctx, user.ID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	id, err = s.Provider.CreateCustomer(ctx, user.Email, user.FullName, user.ID.String())
	metrics.Upstream("stripe", err)
	if err != nil {
		return "", err
	}

	if err := s.Store.UpsertStripeCustomer(ctx, user.ID, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) Checkout(ctx context.Context, user *models.User, plan models.Plan) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}

	priceID, ok := s.Prices.PriceForPlan(string(plan))
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}

	customerID, err := s.EnsureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(s.FrontendURL, "/")
	url, err := s.Provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     user.ID.String(),
		SuccessURL: base + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  base + "/billing/cancel",
	})
	metrics.Upstream("stripe", err)
	return url, err
}

// Portal returns store.ErrNotFound when the user never became a customer.
func (s *Service) Portal(ctx context.Context, userID uuid.UUID) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}

	customerID, err := s.Store.GetStripeCustomerID(ctx, userID)
	if err != nil {
		return "", err
	}

	url, err := s.Provider.CreatePortalSession(ctx, customerID, strings.TrimRight(s.FrontendURL, "/")+"/settings/billing")
	metrics.Upstream("stripe", err)
	return url, err
}

func (s *Service) CancelSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	current, err := s.Store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub, err := s.Provider.CancelAtPeriodEnd(ctx, current.ID)
	metrics.Upstream("stripe", err)
	if err != nil {
		return nil, err
	}

	mirrored := subscriptionFromStripe(sub, userID, s.Prices)
	mirrored.CancelAtPeriodEnd = true
	if mirrored.PriceID == "" {
		mirrored.PriceID = current.PriceID
		mirrored.Plan = current.Plan
	}
	if mirrored.StripeCustomerID == "" {
		mirrored.StripeCustomerID = current.StripeCustomerID
	}
	if mirrored.CurrentPeriodEnd == nil {
		mirrored.CurrentPeriodStart = current.CurrentPeriodStart
		mirrored.CurrentPeriodEnd = current.CurrentPeriodEnd
	}

	if err := s.Store.UpsertSubscription(ctx, mirrored); err != nil {
		return nil, err
	}
	if err := s.Store.UpdatePlanSnapshot(ctx, userID, snapshotOf(mirrored)); err != nil {
		return nil, err
	}
	return &mirrored, nil
}

func (s *Service) AttachPaymentMethod(ctx context.Context, user *models.User, paymentMethodID string, makeDefault bool) (*models.PaymentMethod, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	customerID, err := s.EnsureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	pm, err := s.Provider.AttachPaymentMethod(ctx, paymentMethodID, customerID)
	metrics.Upstream("stripe", err)
	if err != nil {
		return nil, err
	}

	if makeDefault {
		err = s.Provider.SetDefaultPaymentMethod(ctx, customerID, pm.ID)
		metrics.Upstream("stripe", err)
		if err != nil {
			return nil, err
		}
	}

	mirrored := paymentMethodFromStripe(pm, user.ID, false)
	if err := s.Store.UpsertPaymentMethod(ctx, mirrored); err != nil {
		return nil, err
	}
	if makeDefault {
		if err := s.Store.SetDefaultPaymentMethod(ctx, user.ID, mirrored.ID); err != nil {
			return nil, err
		}
		mirrored.IsDefault = true
	}
	return &mirrored, nil
}

func (s *Service) ownsPaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) error {
	methods, err := s.Store.ListPaymentMethods(ctx, userID)
	if err != nil {
		return err
	}
	for _, m := range methods {
		if m.ID == paymentMethodID {
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Service) RemovePaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	if err := s.ownsPaymentMethod(ctx, userID, paymentMethodID); err != nil {
		return err
	}

	err := s.Provider.DetachPaymentMethod(ctx, paymentMethodID)
	metrics.Upstream("stripe", err)
	if err != nil {
		return err
	}
	return s.Store.DeletePaymentMethod(ctx, userID, paymentMethodID)
}

func (s *Service) SetDefaultPaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	if err := s.ownsPaymentMethod(ctx, userID, paymentMethodID); err != nil {
		return err
	}

	customerID, err := s.Store.GetStripeCustomerID(ctx, userID)
	if err != nil {
		return err
	}

	err = s.Provider.SetDefaultPaymentMethod(ctx, customerID, paymentMethodID)
	metrics.Upstream("stripe", err)
	if err != nil {
		return err
	}
	return s.Store.SetDefaultPaymentMethod(ctx, userID, paymentMethodID)
}

// SyncInvoices pulls the latest invoices from Stripe into the mirror and returns the mirror.
func (s *Service) SyncInvoices(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	customerID, err := s.Store.GetStripeCustomerID(ctx, userID)
	if err != nil {
		return nil, err
	}

	invoices, err := s.Provider.ListInvoices(ctx, customerID, invoiceSyncLimit)
	metrics.Upstream("stripe", err)
	if err != nil {
		return nil, err
	}

	for _, inv := range invoices {
		if err := s.Store.UpsertInvoice(ctx, invoiceFromStripe(inv, userID)); err != nil {
			return nil, err
		}
	}
	return s.Store.ListInvoices(ctx, userID, invoiceSyncLimit)
}

// CleanupProducts archives active products that carry none of the keep price ids.
func CleanupProducts(ctx context.Context, p Provider, keep []string, dryRun bool) ([]string, error) {
	products, err := p.ListActiveProducts(ctx)
	if err != nil {
		return nil, err
	}
	prices, err := p.ActivePriceIDs(ctx)
	if err != nil {
		return nil, err
	}

	kept := map[string]bool{}
	for _, id := range keep {
		kept[id] = true
	}

	var archived []string
	for _, prod := range products {
		inUse := false
		for _, priceID := range prices[prod.ID] {
			if kept[priceID] {
				inUse = true
				break
			}
		}
		if inUse {
			continue
		}
		if !dryRun {
			if err := p.ArchiveProduct(ctx, prod.ID); err != nil {
				return archived, err
			}
		}
		archived = append(archived, prod.ID)
	}
	return archived, nil
}
