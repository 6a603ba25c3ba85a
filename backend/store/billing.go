package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adlens/adlens/backend/models"
	"github.com/google/uuid"
)

func (s *Store) GetStripeCustomerID(ctx context.Context, userID uuid.UUID) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `SELECT stripe_customer_id FROM stripe_customers WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		return "", notFound(err)
	}
	return id, nil
}

func (s *Store) UpsertStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO stripe_customers (user_id, stripe_customer_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			updated_at = now()
	`, userID, customerID)
	if err != nil {
		return fmt.Errorf("upsert stripe customer: %w", err)
	}
	return nil
}

func (s *Store) UserIDByCustomer(ctx context.Context, customerID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx, `SELECT user_id FROM stripe_customers WHERE stripe_customer_id = $1`, customerID).Scan(&id)
	if err != nil {
		return uuid.Nil, notFound(err)
	}
	return id, nil
}

func (s *Store) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, stripe_customer_id, price_id, plan, status,
			current_period_start, current_period_end, cancel_at_period_end, canceled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			price_id = EXCLUDED.price_id,
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = now()
	`, sub.ID, sub.UserID, sub.StripeCustomerID, sub.PriceID, sub.Plan, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.CanceledAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns the most recently updated subscription for the user.
func (s *Store) GetSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	var start, end, canceled sql.NullTime

	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, stripe_customer_id, price_id, plan, status,
			current_period_start, current_period_end, cancel_at_period_end, canceled_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.StripeCustomerID,
		&sub.PriceID,
		&sub.Plan,
		&sub.Status,
		&start,
		&end,
		&sub.CancelAtPeriodEnd,
		&canceled,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	sub.CurrentPeriodStart = timePtr(start)
	sub.CurrentPeriodEnd = timePtr(end)
	sub.CanceledAt = timePtr(canceled)
	return &sub, nil
}

func (s *Store) UpsertPaymentMethod(ctx context.Context, pm models.PaymentMethod) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO payment_methods (id, user_id, brand, last4, exp_month, exp_year, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			brand = EXCLUDED.brand,
			last4 = EXCLUDED.last4,
			exp_month = EXCLUDED.exp_month,
			exp_year = EXCLUDED.exp_year,
			is_default = EXCLUDED.is_default OR payment_methods.is_default
	`, pm.ID, pm.UserID, pm.Brand, pm.Last4, pm.ExpMonth, pm.ExpYear, pm.IsDefault)
	if err != nil {
		return fmt.Errorf("upsert payment method: %w", err)
	}
	return nil
}

func (s *Store) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, brand, last4, exp_month, exp_year, is_default, created_at
		FROM payment_methods
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	methods := []models.PaymentMethod{}
	for rows.Next() {
		var pm models.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.UserID, &pm.Brand, &pm.Last4, &pm.ExpMonth, &pm.ExpYear, &pm.IsDefault, &pm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

func (s *Store) DeletePaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM payment_methods WHERE id = $1 AND user_id = $2`, paymentMethodID, userID)
	if err != nil {
		return fmt.Errorf("delete payment method: %w", err)
	}
	return expectRows(res)
}

// DeletePaymentMethodByID is used by webhooks, which do not know the owner.
func (s *Store) DeletePaymentMethodByID(ctx context.Context, paymentMethodID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM payment_methods WHERE id = $1`, paymentMethodID)
	if err != nil {
		return fmt.Errorf("delete payment method: %w", err)
	}
	return nil
}

func (s *Store) SetDefaultPaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin DB transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE payment_methods SET is_default = false WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear default payment method: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE payment_methods SET is_default = true WHERE id = $1 AND user_id = $2`, paymentMethodID, userID)
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	return expectRows(res)
}

func (s *Store) UpsertInvoice(ctx context.Context, inv models.Invoice) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO invoices (id, user_id, stripe_customer_id, number, status, amount_due, amount_paid,
			currency, hosted_invoice_url, invoice_pdf, period_start, period_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id)
		DO UPDATE SET
			number = EXCLUDED.number,
			status = EXCLUDED.status,
			amount_due = EXCLUDED.amount_due,
			amount_paid = EXCLUDED.amount_paid,
			hosted_invoice_url = EXCLUDED.hosted_invoice_url,
			invoice_pdf = EXCLUDED.invoice_pdf,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end
	`, inv.ID, inv.UserID, inv.StripeCustomerID, inv.Number, inv.Status, inv.AmountDue, inv.AmountPaid,
		inv.Currency, inv.HostedInvoiceURL, inv.InvoicePDF, inv.PeriodStart, inv.PeriodEnd, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert invoice: %w", err)
	}
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, userID uuid.UUID, limit int) ([]models.Invoice, error) {
	if limit <= 0 || limit > 100 {
		limit = 24
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, stripe_customer_id, number, status, amount_due, amount_paid, currency,
			hosted_invoice_url, invoice_pdf, period_start, period_end, created_at
		FROM invoices
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		var inv models.Invoice
		var start, end sql.NullTime
		err := rows.Scan(
			&inv.ID,
			&inv.UserID,
			&inv.StripeCustomerID,
			&inv.Number,
			&inv.Status,
			&inv.AmountDue,
			&inv.AmountPaid,
			&inv.Currency,
			&inv.HostedInvoiceURL,
			&inv.InvoicePDF,
			&start,
			&end,
			&inv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.PeriodStart = timePtr(start)
		inv.PeriodEnd = timePtr(end)
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
