// ABOUTME: Tests for engagement engine data models
// ABOUTME: Covers insight liveness, goal state terminality, URL normalization and dedup keys
package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInsightLive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		insight Insight
		want    bool
	}{
		{"current without expiry", Insight{IsCurrent: true}, true},
		{"superseded", Insight{IsCurrent: false}, false},
		{"expired", Insight{IsCurrent: true, ExpiresAt: &past}, false},
		{"not yet expired", Insight{IsCurrent: true, ExpiresAt: &future}, true},
		{"expires exactly now", Insight{IsCurrent: true, ExpiresAt: &now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.insight.Live(now); got != tt.want {
				t.Errorf("Live() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGoalStateTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		GoalProposed:  false,
		GoalDeferred:  false,
		GoalSucceeded: true,
		GoalDeclined:  true,
		GoalEscalated: true,
	} {
		s := &GoalState{Status: status}
		if s.Terminal() != want {
			t.Errorf("status %s: expected terminal=%v", status, want)
		}
	}
}

func TestPersonIdentity(t *testing.T) {
	p := &Person{}
	if p.HasIdentity() {
		t.Error("expected empty person to have no identity")
	}
	p.ChatID = "U123"
	if !p.HasIdentity() {
		t.Error("expected chat id to count as identity")
	}
	if p.IsMapped() {
		t.Error("expected unmapped person")
	}
	p.MappingStatus = MappingMapped
	if !p.IsMapped() {
		t.Error("expected mapped person")
	}
}

func TestConfigVersionAvgRating(t *testing.T) {
	v := &ConfigVersion{}
	if v.AvgRating() != 0 {
		t.Errorf("expected 0 for unrated version, got %f", v.AvgRating())
	}
	v.RatingSum = 9
	v.RatingCount = 2
	if v.AvgRating() != 4.5 {
		t.Errorf("expected 4.5, got %f", v.AvgRating())
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/post/", "https://example.com/post"},
		{"http://example.com/post?utm_source=x&b=2&a=1#top", "https://example.com/post?a=1&b=2"},
		{"https://example.com:443/post", "https://example.com/post"},
		{"https://example.com:8080/post", "https://example.com:8080/post"},
		{"  ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestActivityDedupKey(t *testing.T) {
	person := uuid.New()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := ActivityDedupKey("evt-1", person, ActivityChatMessage, ts, ""); got != "ext:evt-1" {
		t.Errorf("expected external id key, got %s", got)
	}

	a := ActivityDedupKey("", person, ActivityChatMessage, ts, "")
	b := ActivityDedupKey("", person, ActivityChatMessage, ts.In(time.FixedZone("x", 3600)), "")
	if a != b {
		t.Error("expected same instant in different zones to share a key")
	}

	s1 := ActivityDedupKey("", person, ActivityContentShared, ts, "https://www.example.com/a/")
	s2 := ActivityDedupKey("", person, ActivityContentShared, ts.Add(time.Hour), "http://example.com/a?utm_medium=social")
	if s1 != s2 {
		t.Error("expected re-shared link to dedupe regardless of time")
	}

	other := ActivityDedupKey("", uuid.New(), ActivityContentShared, ts, "https://example.com/a")
	if other == s1 {
		t.Error("expected different people to get different keys")
	}
}
