package handlers

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesurf-vpn/safesurf-backend/internal/models"
)

func TestFeedBody(t *testing.T) {
	configs := []models.SubscriptionConfig{
		{ConfigURL: "vless://uuid@nl1.example.com:443?type=tcp", Position: 0},
		{ConfigURL: "vmess://eyJ2IjoiMiJ9", Position: 1},
	}

	body := FeedBody(configs)
	raw, err := base64.StdEncoding.DecodeString(body)
	require.NoError(t, err)

	assert.Equal(t,
		"vless://uuid@nl1.example.com:443?type=tcp\nvmess://eyJ2IjoiMiJ9",
		string(raw))
}

func TestFeedBodyEmpty(t *testing.T) {
	assert.Equal(t, "", FeedBody(nil))
}

func TestUserInfoHeader(t *testing.T) {
	limit := int64(107374182400)
	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		TrafficUsed:  123456789,
		TrafficLimit: &limit,
		EndDate:      end,
	}

	assert.Equal(t,
		fmt.Sprintf("upload=0; download=123456789; total=107374182400; expire=%d", end.Unix()),
		UserInfoHeader(sub))
}

func TestUserInfoHeaderUnlimited(t *testing.T) {
	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{TrafficUsed: 42, EndDate: end}

	assert.Equal(t,
		fmt.Sprintf("upload=0; download=42; total=0; expire=%d", end.Unix()),
		UserInfoHeader(sub))
}

func TestFeedGate(t *testing.T) {
	now := time.Now().UTC()

	active := func(end time.Time) *models.Subscription {
		sub := &models.Subscription{EndDate: end}
		sub.SetStatus(models.StatusActive)
		return sub
	}
	withStatus := func(status models.SubscriptionStatus) *models.Subscription {
		sub := &models.Subscription{EndDate: now.Add(24 * time.Hour)}
		sub.SetStatus(status)
		return sub
	}

	tests := []struct {
		name     string
		sub      *models.Subscription
		wantCode int
	}{
		{"active within window", active(now.Add(24 * time.Hour)), 0},
		{"active but past end date", active(now.Add(-time.Minute)), 403},
		{"expired", withStatus(models.StatusExpired), 403},
		{"pending looks like unknown token", withStatus(models.StatusPending), 404},
		{"cancelled looks like unknown token", withStatus(models.StatusCancelled), 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := feedGate(tt.sub, now)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestShortToken(t *testing.T) {
	assert.Equal(t, "b3c8a7f2", shortToken("b3c8a7f2-1d4e-4a9b-8c6d-5e2f1a0b9c8d"))
	assert.Equal(t, "short", shortToken("short"))
}
