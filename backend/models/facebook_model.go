package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type FacebookSession struct {
	UserID      uuid.UUID  `json:"userId"`
	FBUserID    string     `json:"fbUserId"`
	FBUserName  string     `json:"fbUserName"`
	AccessToken string     `json:"-"`
	AdAccountID string     `json:"adAccountId"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	ConnectedAt time.Time  `json:"connectedAt"`
}

// Expired reports whether the stored Graph token is past its expiry.
func (s FacebookSession) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

type ConnectFacebook struct {
	AccessToken string `json:"accessToken"`
	AdAccountID string `json:"adAccountId"`
}

// CampaignData is the denormalized copy of a Graph API campaign with its latest totals.
type CampaignData struct {
	UserID         uuid.UUID  `json:"-"`
	CampaignID     string     `json:"campaignId"`
	AdAccountID    string     `json:"adAccountId"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	Objective      string     `json:"objective"`
	DailyBudget    int64      `json:"dailyBudget"`
	LifetimeBudget int64      `json:"lifetimeBudget"`
	Spend          float64    `json:"spend"`
	Impressions    int64      `json:"impressions"`
	Clicks         int64      `json:"clicks"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	StopTime       *time.Time `json:"stopTime,omitempty"`
	SyncedAt       time.Time  `json:"syncedAt"`
}

type MetricsCache struct {
	UserID    uuid.UUID       `json:"-"`
	ObjectID  string          `json:"objectId"`
	WindowKey string          `json:"windowKey"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// AnalysisRequest is what the dashboard sends for AI creative scoring.
type AnalysisRequest struct {
	CreativeID   string `json:"creativeId"`
	ImageURL     string `json:"imageUrl"`
	Headline     string `json:"headline"`
	PrimaryText  string `json:"primaryText"`
	CallToAction string `json:"callToAction"`
	Objective    string `json:"objective"`
}
