package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/adlens/adlens/backend/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, full_name, company, timezone, plan, plan_status, plan_renews_at, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var renews sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Company,
		&u.Timezone,
		&u.Plan,
		&u.PlanStatus,
		&renews,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	u.PlanRenewsAt = timePtr(renews)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, fullName, company string) (*models.User, error) {
	row := s.DB.QueryRowContext(ctx, `
	INSERT INTO users (email, password_hash, full_name, company)
	VALUES ($1, $2, $3, $4)
	RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(email)), passwordHash, fullName, company)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *Store) UpdateProfile(ctx context.Context, id uuid.UUID, p models.UpdateProfile) (*models.User, error) {
	row := s.DB.QueryRowContext(ctx, `
	UPDATE users
	SET full_name = COALESCE(NULLIF($1, ''), full_name),
	company = COALESCE(NULLIF($2, ''), company),
	timezone = COALESCE(NULLIF($3, ''), timezone),
	updated_at = now()
	WHERE id = $4
	RETURNING `+userColumns,
		p.FullName, p.Company, p.Timezone, id)
	return scanUser(row)
}

func (s *Store) UpdatePlanSnapshot(ctx context.Context, userID uuid.UUID, snap models.PlanSnapshot) error {
	res, err := s.DB.ExecContext(ctx, `
	UPDATE users
	SET plan = $1,
	plan_status = $2,
	plan_renews_at = $3,
	updated_at = now()
	WHERE id = $4
	`, snap.Plan, snap.Status, snap.RenewsAt, userID)
	if err != nil {
		return fmt.Errorf("update plan snapshot: %w", err)
	}
	return expectRows(res)
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
