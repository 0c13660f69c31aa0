package insights

import (
	"math"

	"session-insights/internal/query"
	"session-insights/internal/query/templates"
)

// Metric names used in profiles and comparisons.
const (
	MetricBalance = "balance"
	MetricGait    = "gait"
	MetricPosture = "posture"
)

// declineMargin is how far the recent average must sit below the all-time
// average before it counts as a decline.
const declineMargin = 2.0

// fatigueShortSessions is the short-session count in the recent window that
// marks fatigue.
const fatigueShortSessions = 3

const maxSuggestions = 5

// Profile summarizes what changed in the recent window.
type Profile struct {
	Declines []string `json:"declines"`
	Fatigue  bool     `json:"fatigue"`
}

func (p Profile) Declined(metric string) bool {
	for _, d := range p.Declines {
		if d == metric {
			return true
		}
	}
	return false
}

// Exercise is one deterministic suggestion.
type Exercise struct {
	Name    string   `json:"name"`
	Minutes int      `json:"minutes"`
	Tags    []string `json:"tags"`
}

var declineColumns = []struct {
	metric string
	recent string
	all    string
}{
	{MetricBalance, templates.ColAvgBalance10, templates.ColAvgBalanceAll},
	{MetricGait, templates.ColAvgGait10, templates.ColAvgGaitAll},
	{MetricPosture, templates.ColAvgPosture10, templates.ColAvgPostureAll},
}

// HasOverviewColumns reports whether row looks like a HealthOverview row.
func HasOverviewColumns(row query.Row) bool {
	if row == nil {
		return false
	}
	_, ok := row[templates.ColShortSessions10]
	return ok
}

// ProfileFromOverview reads a HealthOverview row. Missing or NULL averages
// never produce a decline.
func ProfileFromOverview(row query.Row) Profile {
	p := Profile{Declines: []string{}}
	for _, c := range declineColumns {
		recent, ok1 := row.Float(c.recent)
		all, ok2 := row.Float(c.all)
		if ok1 && ok2 && recent+declineMargin < all {
			p.Declines = append(p.Declines, c.metric)
		}
	}
	if short, ok := row.Float(templates.ColShortSessions10); ok && short >= fatigueShortSessions {
		p.Fatigue = true
	}
	return p
}

// Recommend maps a profile to at most five exercises. Output is stable for
// equal profiles.
func Recommend(p Profile) []Exercise {
	var out []Exercise
	if p.Declined(MetricBalance) {
		out = append(out,
			Exercise{Name: "Tandem Stance", Minutes: 5, Tags: []string{"balance", "beginner"}},
			Exercise{Name: "Single-leg Stance (support)", Minutes: 5, Tags: []string{"balance", "beginner"}},
		)
	}
	if p.Declined(MetricGait) {
		out = append(out, Exercise{Name: "Heel-to-Toe Walk (line)", Minutes: 5, Tags: []string{"gait", "beginner"}})
	}
	if p.Declined(MetricPosture) {
		out = append(out, Exercise{Name: "Wall Posture Hold", Minutes: 4, Tags: []string{"posture", "beginner"}})
	}
	if len(out) == 0 {
		out = append(out,
			Exercise{Name: "Dead Bug", Minutes: 5, Tags: []string{"core", "beginner"}},
			Exercise{Name: "Bridge", Minutes: 5, Tags: []string{"core", "beginner"}},
		)
	}
	if p.Fatigue {
		for i := range out {
			out[i].Minutes -= 2
			if out[i].Minutes < 3 {
				out[i].Minutes = 3
			}
		}
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

var compareColumns = []struct {
	session string
	all     string
}{
	{"posture_score", templates.ColAvgPostureAll},
	{"gait_symmetry", templates.ColAvgGaitAll},
	{"balance_score", templates.ColAvgBalanceAll},
	{"step_count", templates.ColAvgStepsAll},
}

// Compare returns session minus all-time average per metric, rounded to two
// decimals, keyed "delta_<session column>". Metrics missing on either side
// are left out.
func Compare(session, overview query.Row) map[string]float64 {
	out := make(map[string]float64)
	if session == nil || overview == nil {
		return out
	}
	for _, c := range compareColumns {
		s, ok1 := session.Float(c.session)
		a, ok2 := overview.Float(c.all)
		if !ok1 || !ok2 {
			continue
		}
		out["delta_"+c.session] = round2(s - a)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
