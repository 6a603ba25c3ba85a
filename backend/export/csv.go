package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adlens/adlens/backend/models"
)

var campaignHeaders = []string{
	"Campaign ID", "Name", "Status", "Objective", "Daily Budget", "Lifetime Budget",
	"Spend", "Impressions", "Clicks", "CTR (%)", "CPC", "Start", "Stop", "Synced At",
}

// CampaignsCSV renders campaign rows with their derived click metrics.
func CampaignsCSV(rows []models.CampaignData) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(campaignHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, c := range rows {
		record := []string{
			c.CampaignID,
			sanitize(c.Name),
			c.Status,
			c.Objective,
			minorUnits(c.DailyBudget),
			minorUnits(c.LifetimeBudget),
			strconv.FormatFloat(c.Spend, 'f', 2, 64),
			strconv.FormatInt(c.Impressions, 10),
			strconv.FormatInt(c.Clicks, 10),
			ratio(float64(c.Clicks)*100, float64(c.Impressions)),
			ratio(c.Spend, float64(c.Clicks)),
			formatTime(c.StartTime),
			formatTime(c.StopTime),
			c.SyncedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// sanitize stops spreadsheet apps from evaluating user-controlled names as formulas.
func sanitize(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func minorUnits(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v)/100, 'f', 2, 64)
}

func ratio(num, den float64) string {
	if den == 0 {
		return ""
	}
	return strconv.FormatFloat(num/den, 'f', 2, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
