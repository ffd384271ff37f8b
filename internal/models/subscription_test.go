package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidStatus(t *testing.T) {
	for _, s := range []SubscriptionStatus{StatusPending, StatusActive, StatusExpired, StatusCancelled} {
		assert.True(t, ValidStatus(s), string(s))
	}
	assert.False(t, ValidStatus("ACTIVE ")) // exact match only
	assert.False(t, ValidStatus("active"))
	assert.False(t, ValidStatus(""))
}

func TestSetStatusKeepsIsActiveInSync(t *testing.T) {
	var sub Subscription

	sub.SetStatus(StatusActive)
	assert.Equal(t, StatusActive, sub.Status)
	assert.True(t, sub.IsActive)

	sub.SetStatus(StatusExpired)
	assert.Equal(t, StatusExpired, sub.Status)
	assert.False(t, sub.IsActive)

	sub.SetStatus(StatusCancelled)
	assert.False(t, sub.IsActive)
}

func TestExpiredAt(t *testing.T) {
	now := time.Now()

	sub := Subscription{EndDate: now.Add(-time.Minute)}
	assert.True(t, sub.ExpiredAt(now))

	sub.EndDate = now.Add(time.Minute)
	assert.False(t, sub.ExpiredAt(now))

	var unset Subscription
	assert.False(t, unset.ExpiredAt(now), "zero end date never expires")
}
