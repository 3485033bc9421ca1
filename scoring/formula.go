// ABOUTME: Versioned engagement scoring formulas and their registry
// ABOUTME: Callers select a formula by name so the weighting can change without code changes
package scoring

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harperreed/engage/models"
)

const (
	MaxScore = 100

	FormulaV1      = "v1"
	FormulaRecency = "v2-recency"
)

// Formula turns a person's windowed activity into a bounded score.
type Formula interface {
	Name() string
	Score(person *models.Person, events []models.ActivityEvent, asOf time.Time) models.ScoreComponents
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Formula{}
)

func init() {
	Register(weightedFormula{name: FormulaV1})
	Register(weightedFormula{name: FormulaRecency, recentWindow: 7 * 24 * time.Hour})
}

// Register adds or replaces a formula under its name.
func Register(f Formula) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f.Name()] = f
}

// Lookup returns the formula registered under name.
func Lookup(name string) (Formula, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown score formula %q", name)
	}
	return f, nil
}

// Formulas lists registered formula names.
func Formulas() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Point weights per activity type.
const (
	activityPoints = 10
	eventPoints    = 20
)

// weightedFormula awards fixed points per activity, capping each component and the total.
// With a non-zero recentWindow, activity older than the window earns half points.
type weightedFormula struct {
	name         string
	recentWindow time.Duration
}

func (f weightedFormula) Name() string { return f.name }

func (f weightedFormula) Score(person *models.Person, events []models.ActivityEvent, asOf time.Time) models.ScoreComponents {
	// Points are accumulated doubled so half weights stay integral.
	var activity2, events2 int
	seenLinks := make(map[string]bool)

	for _, e := range events {
		if e.OccurredAt.After(asOf) {
			continue
		}
		weight := 2
		if f.recentWindow > 0 && asOf.Sub(e.OccurredAt) > f.recentWindow {
			weight = 1
		}

		switch e.Type {
		case models.ActivitySlackMessage, models.ActivitySlackReaction, models.ActivitySlackReply:
			// Workspace activity only counts for people with a linked chat identity.
			if person.ChatID == "" {
				continue
			}
			activity2 += activityPoints * weight
		case models.ActivityChatMessage, models.ActivityEmailInbound:
			activity2 += activityPoints * weight
		case models.ActivityContentShared:
			link := models.NormalizeURL(e.URL)
			if link != "" {
				if seenLinks[link] {
					continue
				}
				seenLinks[link] = true
			}
			activity2 += activityPoints * weight
		case models.ActivityEventRegistered, models.ActivityEventAttended:
			events2 += eventPoints * weight
		}
	}

	return models.ScoreComponents{
		Activity: min(activity2/2, MaxScore),
		Events:   min(events2/2, MaxScore),
	}
}

// Total combines components into the bounded 0..100 score.
func Total(c models.ScoreComponents) int {
	return max(0, min(c.Activity+c.Events, MaxScore))
}
