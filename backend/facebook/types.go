package facebook

import (
	"strconv"
	"strings"
	"time"
)

const graphTimeLayout = "2006-01-02T15:04:05-0700"

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AdAccount struct {
	ID            string `json:"id"`
	AccountID     string `json:"accountId"`
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	AccountStatus int    `json:"accountStatus"`
	Timezone      string `json:"timezone"`
}

type graphAdAccount struct {
	ID            string `json:"id"`
	AccountID     string `json:"account_id"`
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	AccountStatus int    `json:"account_status"`
	TimezoneName  string `json:"timezone_name"`
}

func (g graphAdAccount) reshape() AdAccount {
	return AdAccount{
		ID:            g.ID,
		AccountID:     g.AccountID,
		Name:          g.Name,
		Currency:      g.Currency,
		AccountStatus: g.AccountStatus,
		Timezone:      g.TimezoneName,
	}
}

type Campaign struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	Objective      string     `json:"objective"`
	DailyBudget    int64      `json:"dailyBudget"`
	LifetimeBudget int64      `json:"lifetimeBudget"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	StopTime       *time.Time `json:"stopTime,omitempty"`
	Spend          float64    `json:"spend"`
	Impressions    int64      `json:"impressions"`
	Clicks         int64      `json:"clicks"`
}

type graphCampaign struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Objective      string `json:"objective"`
	DailyBudget    string `json:"daily_budget"`
	LifetimeBudget string `json:"lifetime_budget"`
	StartTime      string `json:"start_time"`
	StopTime       string `json:"stop_time"`
	Insights       struct {
		Data []graphInsights `json:"data"`
	} `json:"insights"`
}

func (g graphCampaign) reshape() Campaign {
	c := Campaign{
		ID:             g.ID,
		Name:           g.Name,
		Status:         g.Status,
		Objective:      g.Objective,
		DailyBudget:    parseInt(g.DailyBudget),
		LifetimeBudget: parseInt(g.LifetimeBudget),
		StartTime:      parseGraphTime(g.StartTime),
		StopTime:       parseGraphTime(g.StopTime),
	}
	if len(g.Insights.Data) > 0 {
		t := g.Insights.Data[0].totals()
		c.Spend, c.Impressions, c.Clicks = t.Spend, t.Impressions, t.Clicks
	}
	return c
}

// Totals are the summed insights of one object over one window.
type Totals struct {
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Reach       int64   `json:"reach"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	CPM         float64 `json:"cpm"`
	Conversions int64   `json:"conversions"`
}

type graphInsights struct {
	Spend       string `json:"spend"`
	Impressions string `json:"impressions"`
	Clicks      string `json:"clicks"`
	Reach       string `json:"reach"`
	CTR         string `json:"ctr"`
	CPC         string `json:"cpc"`
	CPM         string `json:"cpm"`
	Actions     []struct {
		ActionType string `json:"action_type"`
		Value      string `json:"value"`
	} `json:"actions"`
}

var conversionActions = map[string]bool{
	"purchase":              true,
	"lead":                  true,
	"complete_registration": true,
}

func (g graphInsights) totals() Totals {
	t := Totals{
		Spend:       parseFloat(g.Spend),
		Impressions: parseInt(g.Impressions),
		Clicks:      parseInt(g.Clicks),
		Reach:       parseInt(g.Reach),
		CTR:         parseFloat(g.CTR),
		CPC:         parseFloat(g.CPC),
		CPM:         parseFloat(g.CPM),
	}
	for _, a := range g.Actions {
		if conversionActions[a.ActionType] {
			t.Conversions += parseInt(a.Value)
		}
	}
	return t
}

type Creative struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title,omitempty"`
	Body         string `json:"body,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	ImageToken   string `json:"imageToken,omitempty"`
	CallToAction string `json:"callToAction,omitempty"`
}

type graphCreative struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	ImageURL         string `json:"image_url"`
	ThumbnailURL     string `json:"thumbnail_url"`
	CallToActionType string `json:"call_to_action_type"`
}

func (g graphCreative) reshape() Creative {
	c := Creative{
		ID:           g.ID,
		Name:         g.Name,
		Title:        g.Title,
		Body:         g.Body,
		ImageURL:     g.ImageURL,
		ThumbnailURL: g.ThumbnailURL,
		CallToAction: g.CallToActionType,
	}
	src := c.ImageURL
	if src == "" {
		src = c.ThumbnailURL
	}
	c.ImageToken = ImageToken(src)
	return c
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseGraphTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(graphTimeLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
