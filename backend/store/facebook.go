package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adlens/adlens/backend/models"
	"github.com/google/uuid"
)

func (s *Store) UpsertFacebookSession(ctx context.Context, fs models.FacebookSession) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO facebook_sessions (user_id, fb_user_id, fb_user_name, access_token, ad_account_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id)
		DO UPDATE SET
			fb_user_id = EXCLUDED.fb_user_id,
			fb_user_name = EXCLUDED.fb_user_name,
			access_token = EXCLUDED.access_token,
			ad_account_id = EXCLUDED.ad_account_id,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
	`, fs.UserID, fs.FBUserID, fs.FBUserName, fs.AccessToken, fs.AdAccountID, fs.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert facebook session: %w", err)
	}
	return nil
}

func (s *Store) GetFacebookSession(ctx context.Context, userID uuid.UUID) (*models.FacebookSession, error) {
	var fs models.FacebookSession
	var expires sql.NullTime

	err := s.DB.QueryRowContext(ctx, `
		SELECT user_id, fb_user_id, fb_user_name, access_token, ad_account_id, expires_at, connected_at
		FROM facebook_sessions
		WHERE user_id = $1
	`, userID).Scan(&fs.UserID, &fs.FBUserID, &fs.FBUserName, &fs.AccessToken, &fs.AdAccountID, &expires, &fs.ConnectedAt)
	if err != nil {
		return nil, notFound(err)
	}

	fs.ExpiresAt = timePtr(expires)
	return &fs, nil
}

func (s *Store) DeleteFacebookSession(ctx context.Context, userID uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM facebook_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete facebook session: %w", err)
	}
	return expectRows(res)
}

// UpsertCampaigns replaces the stored copy of each campaign in one transaction.
func (s *Store) UpsertCampaigns(ctx context.Context, userID uuid.UUID, campaigns []models.CampaignData) (err error) {
	if len(campaigns) == 0 {
		return nil
	}

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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_data (user_id, campaign_id, ad_account_id, name, status, objective,
			daily_budget, lifetime_budget, spend, impressions, clicks, start_time, stop_time, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (user_id, campaign_id)
		DO UPDATE SET
			ad_account_id = EXCLUDED.ad_account_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			objective = EXCLUDED.objective,
			daily_budget = EXCLUDED.daily_budget,
			lifetime_budget = EXCLUDED.lifetime_budget,
			spend = EXCLUDED.spend,
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			start_time = EXCLUDED.start_time,
			stop_time = EXCLUDED.stop_time,
			synced_at = now()
	`)
	if err != nil {
		return fmt.Errorf("prepare campaign upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range campaigns {
		_, err = stmt.ExecContext(ctx, userID, c.CampaignID, c.AdAccountID, c.Name, c.Status, c.Objective,
			c.DailyBudget, c.LifetimeBudget, c.Spend, c.Impressions, c.Clicks, c.StartTime, c.StopTime)
		if err != nil {
			return fmt.Errorf("upsert campaign %s: %w", c.CampaignID, err)
		}
	}
	return nil
}

func (s *Store) ListCampaigns(ctx context.Context, userID uuid.UUID) ([]models.CampaignData, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT campaign_id, ad_account_id, name, status, objective, daily_budget, lifetime_budget,
			spend, impressions, clicks, start_time, stop_time, synced_at
		FROM campaign_data
		WHERE user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []models.CampaignData{}
	for rows.Next() {
		c := models.CampaignData{UserID: userID}
		var start, stop sql.NullTime
		err := rows.Scan(
			&c.CampaignID,
			&c.AdAccountID,
			&c.Name,
			&c.Status,
			&c.Objective,
			&c.DailyBudget,
			&c.LifetimeBudget,
			&c.Spend,
			&c.Impressions,
			&c.Clicks,
			&start,
			&stop,
			&c.SyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		c.StartTime = timePtr(start)
		c.StopTime = timePtr(stop)
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// GetMetricsCache returns a cached insights payload no older than maxAge.
func (s *Store) GetMetricsCache(ctx context.Context, userID uuid.UUID, objectID, windowKey string, maxAge time.Duration) (*models.MetricsCache, error) {
	mc := models.MetricsCache{UserID: userID, ObjectID: objectID, WindowKey: windowKey}
	cutoff := time.Now().Add(-maxAge)
	var payload []byte

	err := s.DB.QueryRowContext(ctx, `
		SELECT payload, fetched_at
		FROM metrics_cache
		WHERE user_id = $1 AND object_id = $2 AND window_key = $3 AND fetched_at >= $4
	`, userID, objectID, windowKey, cutoff).Scan(&payload, &mc.FetchedAt)
	if err != nil {
		return nil, notFound(err)
	}
	mc.Payload = payload
	return &mc, nil
}

func (s *Store) PutMetricsCache(ctx context.Context, mc models.MetricsCache) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO metrics_cache (user_id, object_id, window_key, payload, fetched_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, object_id, window_key)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			fetched_at = now()
	`, mc.UserID, mc.ObjectID, mc.WindowKey, []byte(mc.Payload))
	if err != nil {
		return fmt.Errorf("put metrics cache: %w", err)
	}
	return nil
}
