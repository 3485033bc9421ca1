package scoring

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/engage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	people    map[uuid.UUID]*models.Person
	events    map[uuid.UUID][]models.ActivityEvent
	orgScores map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		people:    map[uuid.UUID]*models.Person{},
		events:    map[uuid.UUID][]models.ActivityEvent{},
		orgScores: map[uuid.UUID]int{},
	}
}

func (m *memStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p, ok := m.people[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListActivity(ctx context.Context, personID uuid.UUID, since, until time.Time) ([]models.ActivityEvent, error) {
	var out []models.ActivityEvent
	for _, e := range m.events[personID] {
		if !e.OccurredAt.Before(since) && !e.OccurredAt.After(until) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) SavePersonScore(ctx context.Context, personID uuid.UUID, s models.Score) error {
	p := m.people[personID]
	p.Score = s.Total
	p.ScoreComponents = s.Components
	p.ScoreFormula = s.Formula
	at := s.ComputedAt
	p.ScoresComputedAt = &at
	return nil
}

func (m *memStore) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Person, error) {
	var out []models.Person
	for _, p := range m.people {
		if p.OrganizationID != nil && *p.OrganizationID == orgID && !p.Deleted {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) SaveOrganizationScore(ctx context.Context, orgID uuid.UUID, score int, computedAt time.Time) error {
	m.orgScores[orgID] = score
	return nil
}

func (m *memStore) addPerson(chatID string, org *uuid.UUID) uuid.UUID {
	id := uuid.New()
	m.people[id] = &models.Person{ID: id, ChatID: chatID, OrganizationID: org, MappingStatus: models.MappingUnmapped}
	return id
}

func (m *memStore) add(personID uuid.UUID, typ string, at time.Time, link string) {
	m.events[personID] = append(m.events[personID], models.ActivityEvent{
		ID: uuid.New(), PersonID: personID, Type: typ, OccurredAt: at, URL: link,
	})
}

var asOf = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestComputeScoreScenario(t *testing.T) {
	store := newMemStore()
	p := store.addPerson("U1", nil)
	for i := 0; i < 3; i++ {
		store.add(p, models.ActivityChatMessage, asOf.Add(-time.Duration(i+1)*time.Hour), "")
	}
	store.add(p, models.ActivityEventAttended, asOf.Add(-48*time.Hour), "")

	agg, err := NewAggregator(store, FormulaV1, DefaultWindow)
	require.NoError(t, err)

	score, err := agg.ComputeScore(context.Background(), p, asOf)
	require.NoError(t, err)
	assert.Equal(t, 50, score.Total)
	assert.Equal(t, 30, score.Components.Activity)
	assert.Equal(t, 20, score.Components.Events)
	assert.Equal(t, FormulaV1, score.Formula)

	stored := store.people[p]
	assert.Equal(t, 50, stored.Score)
	require.NotNil(t, stored.ScoresComputedAt)
	assert.True(t, stored.ScoresComputedAt.Equal(asOf))
}

func TestScoreDoesNotStore(t *testing.T) {
	store := newMemStore()
	p := store.addPerson("U1", nil)
	store.add(p, models.ActivityChatMessage, asOf.Add(-time.Hour), "")

	agg, err := NewAggregator(store, FormulaV1, DefaultWindow)
	require.NoError(t, err)

	score, err := agg.Score(context.Background(), p, asOf)
	require.NoError(t, err)
	assert.Equal(t, 10, score.Total)
	assert.Nil(t, store.people[p].ScoresComputedAt)
	assert.Zero(t, store.people[p].Score)
}

func TestComputeScoreZeroActivity(t *testing.T) {
	store := newMemStore()
	p := store.addPerson("", nil)
	store.add(p, models.ActivityChatMessage, asOf.Add(-31*24*time.Hour), "")

	agg, err := NewAggregator(store, FormulaV1, DefaultWindow)
	require.NoError(t, err)

	score, err := agg.ComputeScore(context.Background(), p, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, score.Total)
	assert.Equal(t, models.ScoreComponents{}, score.Components)
}

func TestMissingChatLinkageYieldsZero(t *testing.T) {
	store := newMemStore()
	p := store.addPerson("", nil)
	store.add(p, models.ActivitySlackMessage, asOf.Add(-time.Hour), "")
	store.add(p, models.ActivitySlackReaction, asOf.Add(-2*time.Hour), "")

	agg, err := NewAggregator(store, FormulaV1, 0)
	require.NoError(t, err)

	score, err := agg.ComputeScore(context.Background(), p, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, score.Components.Activity)
}

func TestSharedContentCountsOncePerLink(t *testing.T) {
	f, err := Lookup(FormulaV1)
	require.NoError(t, err)

	person := &models.Person{ID: uuid.New()}
	events := []models.ActivityEvent{
		{Type: models.ActivityContentShared, URL: "https://www.example.com/a/", OccurredAt: asOf.Add(-time.Hour)},
		{Type: models.ActivityContentShared, URL: "http://example.com/a?utm_source=x", OccurredAt: asOf.Add(-2 * time.Hour)},
		{Type: models.ActivityContentShared, URL: "https://example.com/b", OccurredAt: asOf.Add(-3 * time.Hour)},
	}
	assert.Equal(t, 20, f.Score(person, events, asOf).Activity)
}

func TestScoreBoundedness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	person := &models.Person{ID: uuid.New(), ChatID: "U9"}

	for _, name := range Formulas() {
		f, err := Lookup(name)
		require.NoError(t, err)

		for trial := 0; trial < 200; trial++ {
			n := rng.Intn(60)
			events := make([]models.ActivityEvent, n)
			for i := range events {
				events[i] = models.ActivityEvent{
					Type:       models.ActivityTypes[rng.Intn(len(models.ActivityTypes))],
					OccurredAt: asOf.Add(-time.Duration(rng.Intn(30*24)) * time.Hour),
					URL:        "https://example.com/" + string(rune('a'+rng.Intn(26))),
				}
			}
			c := f.Score(person, events, asOf)
			total := Total(c)
			if total < 0 || total > MaxScore {
				t.Fatalf("%s: score %d out of bounds", name, total)
			}
			if c.Activity > MaxScore || c.Events > MaxScore {
				t.Fatalf("%s: component out of bounds: %+v", name, c)
			}
		}
	}
}

func TestRecencyFormulaHalvesOlderActivity(t *testing.T) {
	f, err := Lookup(FormulaRecency)
	require.NoError(t, err)

	person := &models.Person{ID: uuid.New()}
	events := []models.ActivityEvent{
		{Type: models.ActivityChatMessage, OccurredAt: asOf.Add(-24 * time.Hour)},
		{Type: models.ActivityChatMessage, OccurredAt: asOf.Add(-10 * 24 * time.Hour)},
		{Type: models.ActivityEventAttended, OccurredAt: asOf.Add(-20 * 24 * time.Hour)},
	}
	c := f.Score(person, events, asOf)
	assert.Equal(t, 15, c.Activity)
	assert.Equal(t, 10, c.Events)
}

func TestComputeOrgScore(t *testing.T) {
	store := newMemStore()
	org := uuid.New()
	a := store.addPerson("U1", &org)
	b := store.addPerson("U2", &org)
	store.addPerson("U3", nil)

	store.add(a, models.ActivityChatMessage, asOf.Add(-time.Hour), "")
	store.add(b, models.ActivityEventAttended, asOf.Add(-time.Hour), "")
	store.add(b, models.ActivityChatMessage, asOf.Add(-2*time.Hour), "")

	agg, err := NewAggregator(store, FormulaV1, DefaultWindow)
	require.NoError(t, err)

	total, err := agg.ComputeOrgScore(context.Background(), org, asOf)
	require.NoError(t, err)
	// (10 + 30) / 2
	assert.Equal(t, 20, total)
	assert.Equal(t, 20, store.orgScores[org])

	empty, err := agg.ComputeOrgScore(context.Background(), uuid.New(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, empty)
}

func TestUnknownFormula(t *testing.T) {
	_, err := NewAggregator(newMemStore(), "v99", DefaultWindow)
	assert.Error(t, err)
}

func TestStale(t *testing.T) {
	agg, err := NewAggregator(newMemStore(), FormulaV1, DefaultWindow)
	require.NoError(t, err)

	p := &models.Person{}
	assert.True(t, agg.Stale(p, asOf, time.Hour))

	at := asOf.Add(-30 * time.Minute)
	p.ScoresComputedAt = &at
	p.ScoreFormula = FormulaV1
	assert.False(t, agg.Stale(p, asOf, time.Hour))

	p.ScoreFormula = FormulaRecency
	assert.True(t, agg.Stale(p, asOf, time.Hour))

	old := asOf.Add(-2 * time.Hour)
	p.ScoresComputedAt = &old
	p.ScoreFormula = FormulaV1
	assert.True(t, agg.Stale(p, asOf, time.Hour))
}
