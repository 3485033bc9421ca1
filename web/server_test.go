// ABOUTME: Tests for the read-only web dashboard
// ABOUTME: Serves requests through httptest against an in-memory store
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harperreed/engage/db"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/models"
	"github.com/harperreed/engage/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rs := &rules.RuleSet{Goals: []models.Goal{{
		Name:            "welcome",
		Category:        models.CategoryOnboarding,
		MessageTemplate: "Welcome {{first_name}}!",
		Enabled:         true,
		Outcomes:        []models.GoalOutcome{{TriggerType: models.TriggerDefault, OutcomeType: models.OutcomeSuccess}},
	}}}
	rs.Normalize()
	require.NoError(t, store.ImportRuleSet(context.Background(), rs))

	eng, err := engine.New(store, engine.Options{})
	require.NoError(t, err)
	_, _, err = eng.RecordActivity(context.Background(), models.InboundEvent{
		ActorID:     "ada@example.com",
		ActorKind:   models.ActorEmail,
		DisplayName: "Ada Lovelace",
		Type:        models.ActivityChatMessage,
	})
	require.NoError(t, err)

	srv, err := NewServer(eng)
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestDashboardPage(t *testing.T) {
	srv := setupTestServer(t)

	rec := get(t, srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Dashboard</h1>")
	assert.Contains(t, rec.Body.String(), "1 unmapped")
}

func TestDashboardJSON(t *testing.T) {
	srv := setupTestServer(t)

	rec := get(t, srv, "/api/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["TotalPersons"])
}

func TestPeoplePage(t *testing.T) {
	srv := setupTestServer(t)

	rec := get(t, srv, "/people")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ada Lovelace")

	if rec := get(t, srv, "/people?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad limit, got %d", rec.Code)
	}
}

func TestVersionsPage(t *testing.T) {
	srv := setupTestServer(t)

	rec := get(t, srv, "/versions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Config versions")
}

func TestGoalGraph(t *testing.T) {
	srv := setupTestServer(t)

	rec := get(t, srv, "/graphs/goals.dot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "welcome")

	rec = get(t, srv, "/graphs/goals.dot?goal=missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	srv := setupTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/nope").Code)
}
