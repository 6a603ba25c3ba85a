package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/adlens/adlens/backend/billing"
	"github.com/adlens/adlens/backend/models"
	"github.com/adlens/adlens/backend/store"
	"github.com/adlens/adlens/backend/utils"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

type Stripe struct {
	Store   *store.Store
	Billing *billing.Service
}

func respondBillingError(w http.ResponseWriter, err error, message string) {
	var stripeErr *stripe.Error
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		utils.RespondError(w, http.StatusServiceUnavailable, "Billing is not configured")
	case errors.Is(err, billing.ErrUnknownPlan):
		utils.RespondError(w, http.StatusBadRequest, "Unknown plan")
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, message+": not found")
	case errors.As(err, &stripeErr):
		status := http.StatusBadGateway
		if stripeErr.HTTPStatusCode == http.StatusBadRequest || stripeErr.HTTPStatusCode == http.StatusPaymentRequired {
			status = http.StatusBadRequest
		}
		utils.RespondUpstream(w, status, err, message)
	default:
		utils.RespondInternal(w, err, message)
	}
}

// sessionUser loads the full user row for billing calls that need the email.
func (s *Stripe) sessionUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return nil, false
	}
	if !s.Billing.Enabled() {
		respondBillingError(w, billing.ErrNotConfigured, "")
		return nil, false
	}

	user, err := s.Store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "User not found")
			return nil, false
		}
		utils.RespondInternal(w, err, "Unable to load user")
		return nil, false
	}
	return user, true
}

func (s *Stripe) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	customerID, err := s.Billing.EnsureCustomer(r.Context(), user)
	if err != nil {
		respondBillingError(w, err, "Unable to create billing customer")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"customerId": customerID})
}

func (s *Stripe) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var body models.CheckoutRequest
	if !decodeBody(w, r, &body) {
		return
	}
	body.Plan = models.Plan(strings.ToLower(strings.TrimSpace(string(body.Plan))))
	if body.Plan == "" {
		utils.RespondValidationError(w, "Missing required fields", []string{"plan"})
		return
	}

	user, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	url, err := s.Billing.Checkout(r.Context(), user, body.Plan)
	if err != nil {
		respondBillingError(w, err, "Unable to create checkout session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Stripe) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	url, err := s.Billing.Portal(r.Context(), userID)
	if err != nil {
		respondBillingError(w, err, "Billing customer")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Stripe) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	sub, err := s.Billing.CancelSubscription(r.Context(), userID)
	if err != nil {
		respondBillingError(w, err, "Subscription")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, sub)
}

func (s *Stripe) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	sub, err := s.Store.GetSubscription(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Failed to fetch subscription")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, sub)
}

func (s *Stripe) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		zap.L().Warn("error reading webhook body", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	outcome, err := s.Billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		zap.L().Warn("stripe webhook signature rejected", zap.Error(err))
		utils.RespondError(w, http.StatusBadRequest, "Invalid signature")
		return
	case errors.Is(err, billing.ErrNotConfigured):
		utils.RespondError(w, http.StatusServiceUnavailable, "Billing is not configured")
		return
	case err != nil:
		utils.RespondInternal(w, err, "Failed to process webhook")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"result": string(outcome)})
}

func (s *Stripe) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	methods, err := s.Store.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to list payment methods")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, methods)
}

func (s *Stripe) AttachPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var body models.AttachPaymentMethod
	if !decodeBody(w, r, &body) {
		return
	}
	body.PaymentMethodID = strings.TrimSpace(body.PaymentMethodID)
	if !strings.HasPrefix(body.PaymentMethodID, "pm_") {
		utils.RespondFieldErrors(w, map[string]string{"paymentMethodId": "must be a Stripe payment method id"})
		return
	}

	user, ok := s.sessionUser(w, r)
	if !ok {
		return
	}

	pm, err := s.Billing.AttachPaymentMethod(r.Context(), user, body.PaymentMethodID, body.MakeDefault)
	if err != nil {
		respondBillingError(w, err, "Unable to add payment method")
		return
	}

	utils.RespondSuccess(w, http.StatusCreated, pm)
}

func (s *Stripe) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	if err := s.Billing.SetDefaultPaymentMethod(r.Context(), userID, r.PathValue("id")); err != nil {
		respondBillingError(w, err, "Payment method")
		return
	}

	utils.RespondString(w, http.StatusOK, "Default payment method updated")
}

func (s *Stripe) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	if err := s.Billing.RemovePaymentMethod(r.Context(), userID, r.PathValue("id")); err != nil {
		respondBillingError(w, err, "Payment method")
		return
	}

	utils.RespondString(w, http.StatusOK, "Payment method removed")
}

func (s *Stripe) ListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	invoices, err := s.Store.ListInvoices(r.Context(), userID, 0)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to list invoices")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, invoices)
}

func (s *Stripe) SyncInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	invoices, err := s.Billing.SyncInvoices(r.Context(), userID)
	if err != nil {
		respondBillingError(w, err, "Billing customer")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, invoices)
}
