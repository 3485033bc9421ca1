package journey

import (
	"context"
	"testing"

	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdinal(t *testing.T) {
	assert.Equal(t, 0, Ordinal(models.StageAware))
	assert.Equal(t, 7, Ordinal(models.StageAdvocating))
	assert.Equal(t, -1, Ordinal("lost"))
	assert.True(t, IsRegression(models.StageContributing, models.StageJoined))
	assert.False(t, IsRegression(models.StageJoined, models.StageContributing))
	assert.False(t, IsRegression("lost", models.StageJoined))
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name   string
		status string
		stage  string
		score  int
		want   string
	}{
		{"prospect with no engagement", models.SubscriptionNone, models.StageAware, 0, models.StageAware},
		{"prospect with engagement", models.SubscriptionNone, models.StageAware, 5, models.StageEvaluating},
		{"canceled falls back", models.SubscriptionCanceled, models.StageContributing, 70, models.StageEvaluating},
		{"trial", models.SubscriptionTrialing, models.StageAware, 0, models.StageEvaluating},
		{"new member", models.SubscriptionActive, models.StageEvaluating, 10, models.StageJoined},
		{"onboarding", models.SubscriptionActive, models.StageJoined, 20, models.StageOnboarding},
		{"participating", models.SubscriptionActive, models.StageJoined, 45, models.StageParticipating},
		{"contributing", models.SubscriptionPastDue, models.StageJoined, 60, models.StageContributing},
		{"leading is sticky", models.SubscriptionActive, models.StageLeading, 5, models.StageLeading},
		{"advocating is sticky", models.SubscriptionActive, models.StageAdvocating, 90, models.StageAdvocating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			org := &models.Organization{SubscriptionStatus: tt.status, JourneyStage: tt.stage, EngagementScore: tt.score}
			assert.Equal(t, tt.want, Derive(org))
		})
	}
}

func setupTestDB(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetStage(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	svc := NewService(store)

	org := &models.Organization{Name: "Acme"}
	require.NoError(t, store.CreateOrganization(ctx, org))

	_, err := svc.SetStage(ctx, org.ID, "famous", models.JourneyTriggerManual, "")
	assert.ErrorIs(t, err, ErrInvalidStage)

	_, err = svc.SetStage(ctx, org.ID, models.StageJoined, "", "")
	assert.Error(t, err, "a trigger is required")

	tr, err := svc.SetStage(ctx, org.ID, models.StageContributing, models.JourneyTriggerManual, "board seat")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.False(t, tr.Regression)

	same, err := svc.SetStage(ctx, org.ID, models.StageContributing, models.JourneyTriggerManual, "")
	require.NoError(t, err)
	assert.Nil(t, same)

	back, err := svc.SetStage(ctx, org.ID, models.StageJoined, models.JourneyTriggerEngagement, "went quiet")
	require.NoError(t, err)
	assert.True(t, back.Regression)

	history, err := svc.History(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.StageAware, history[0].FromStage)
	assert.Equal(t, "went quiet", history[1].Reason)
}

func TestSync(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	svc := NewService(store)

	org := &models.Organization{Name: "Acme", SubscriptionStatus: models.SubscriptionActive}
	require.NoError(t, store.CreateOrganization(ctx, org))
	require.NoError(t, store.SaveOrganizationScore(ctx, org.ID, 45, svc.now()))

	tr, err := svc.Sync(ctx, org.ID, models.JourneyTriggerEngagement)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, models.StageParticipating, tr.ToStage)

	again, err := svc.Sync(ctx, org.ID, models.JourneyTriggerEngagement)
	require.NoError(t, err)
	assert.Nil(t, again)
}
