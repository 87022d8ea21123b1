package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-order-notification-service/internal/tasks"
)

func TestScheduler_RejectsInvalidSpec(t *testing.T) {
	s := tasks.NewScheduler(nil, newTestLogger())
	err := s.Add("sweep", "not a cron", time.Minute, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep")
}

func TestScheduler_NextDailyRun(t *testing.T) {
	s := tasks.NewScheduler(time.UTC, newTestLogger())
	require.NoError(t, s.Add("sweep", "0 2 * * *", time.Minute, func(ctx context.Context) error { return nil }))

	s.Start()
	defer func() { _ = s.Stop(context.Background()) }()

	next := s.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, 2, next.UTC().Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(25*time.Hour)))
}
