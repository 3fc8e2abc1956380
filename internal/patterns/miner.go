// Package patterns mines recurring-incident summaries from terminal incident
// history.
package patterns

import (
	"log/slog"
	"sort"
	"time"

	"github.com/KingRain/octrix/internal/models"
)

// Miner aggregates simple frequency-based patterns over the in-memory
// incident history. Nothing here is persisted; the view is recomputed per
// call.
type Miner struct {
	logger *slog.Logger
}

// NewMiner constructs a Miner.
func NewMiner(logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{logger: logger}
}

// Mine groups terminal incidents by resource and category and reports the
// groups seen more than once, ordered by prevalence.
func (m *Miner) Mine(incidents []models.Incident) []models.RecurringPattern {
	terminal := 0
	groups := make(map[string]*groupAggregate)
	order := make([]string, 0)

	for _, inc := range incidents {
		if !inc.Status.Terminal() {
			continue
		}
		terminal++
		key := inc.Resource.Key(inc.Category)
		agg, ok := groups[key]
		if !ok {
			agg = &groupAggregate{
				resource: inc.Resource,
				category: inc.Category,
				drivers:  make(map[models.Driver]int),
			}
			groups[key] = agg
			order = append(order, key)
		}
		agg.occurrences++
		if inc.UpdatedAt.After(agg.lastSeen) {
			agg.lastSeen = inc.UpdatedAt
		}
		if inc.AutoHealResult == models.AutoHealSuccess {
			agg.autoHealed++
		}
		if inc.Classification != nil {
			agg.drivers[inc.Classification.Driver]++
		}
	}

	if terminal == 0 {
		return nil
	}

	patterns := make([]models.RecurringPattern, 0, len(groups))
	for _, key := range order {
		agg := groups[key]
		if agg.occurrences < 2 {
			continue
		}
		patterns = append(patterns, models.RecurringPattern{
			ID:             "pattern-" + key,
			Resource:       agg.resource,
			Category:       agg.category,
			Occurrences:    agg.occurrences,
			Prevalence:     float64(agg.occurrences) / float64(terminal),
			AutoHealedPct:  float64(agg.autoHealed) / float64(agg.occurrences),
			LastSeen:       agg.lastSeen,
			DominantDriver: agg.dominantDriver(),
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Prevalence > patterns[j].Prevalence
	})
	return patterns
}

type groupAggregate struct {
	resource    models.ResourceRef
	category    models.Category
	occurrences int
	autoHealed  int
	lastSeen    time.Time
	drivers     map[models.Driver]int
}

// dominantDriver returns the most frequent classified driver, breaking ties
// by name for stable output.
func (agg *groupAggregate) dominantDriver() models.Driver {
	var best models.Driver
	bestCount := 0
	for _, driver := range []models.Driver{models.DriverDegradation, models.DriverMixed, models.DriverTrafficSurge} {
		if count := agg.drivers[driver]; count > bestCount {
			best = driver
			bestCount = count
		}
	}
	return best
}
