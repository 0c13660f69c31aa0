package plan

import "time"

const fallbackSummary = "Gentle two-week plan tailored to current data availability. " +
	"Alternate light core and balance work with rest and active recovery."

// fallbackDays is the fixed two-week template. Rest days still carry a
// light mobility or walking item.
var fallbackDays = []Day{
	{Day: 1, Focus: "core", Exercises: []Exercise{{Name: "Dead bug", Sets: 2, Reps: "6/side", Notes: "slow, controlled breathing"}}},
	{Day: 2, Focus: "balance", Exercises: []Exercise{{Name: "Single-leg stance near support", Sets: 2, Reps: "20-30s/side", Notes: "hold support if needed"}}},
	{Day: 3, Focus: "active-recovery", Exercises: []Exercise{{Name: "Easy walk", Sets: 1, Reps: "10-15 min", Notes: "comfortable pace"}}},
	{Day: 4, Focus: "posture", Exercises: []Exercise{{Name: "Wall posture holds", Sets: 2, Reps: "20-30s", Notes: "shoulders relaxed"}}},
	{Day: 5, Focus: "core", Exercises: []Exercise{{Name: "Bridge", Sets: 2, Reps: "8-10", Notes: "pause at the top"}}},
	{Day: 6, Focus: "rest", Exercises: []Exercise{{Name: "Gentle mobility flow", Sets: 1, Reps: "5-10 min", Notes: "ankles, hips and upper back; no strain"}}},
	{Day: 7, Focus: "balance", Exercises: []Exercise{{Name: "Tandem stance", Sets: 2, Reps: "20-30s", Notes: "light support available"}}},
	{Day: 8, Focus: "core", Exercises: []Exercise{{Name: "Dead bug", Sets: 2, Reps: "8/side", Notes: "smooth tempo"}}},
	{Day: 9, Focus: "balance", Exercises: []Exercise{{Name: "Single-leg stance near support", Sets: 2, Reps: "20-30s/side", Notes: "steady breathing"}}},
	{Day: 10, Focus: "active-recovery", Exercises: []Exercise{{Name: "Easy walk", Sets: 1, Reps: "10-15 min", Notes: "even steps"}}},
	{Day: 11, Focus: "posture", Exercises: []Exercise{{Name: "Wall posture holds", Sets: 2, Reps: "20-30s", Notes: "neutral head"}}},
	{Day: 12, Focus: "core", Exercises: []Exercise{{Name: "Bridge", Sets: 2, Reps: "10-12", Notes: "don't arch the lower back"}}},
	{Day: 13, Focus: "rest", Exercises: []Exercise{{Name: "Easy walk", Sets: 1, Reps: "5-10 min", Notes: "optional, keep it relaxed"}}},
	{Day: 14, Focus: "balance", Exercises: []Exercise{{Name: "Tandem stance", Sets: 2, Reps: "20-30s", Notes: "light support optional"}}},
}

// Fallback returns the fixed plan, dated from start. Plans longer than the
// template repeat it.
func (pl *Planner) Fallback(goal string, start time.Time) *Plan {
	p := &Plan{
		Summary:     fallbackSummary,
		Goal:        goal,
		WeeklyPlan:  make([]Day, pl.days),
		Safety:      "Keep intensity comfortable; stop if you feel pain or dizziness.",
		Progression: "If sessions feel easy in week 2, add 1 set or 2 reps to core and balance drills.",
		Measures:    []string{"posture score", "balance score", "cadence consistency"},
	}
	for i := 0; i < pl.days; i++ {
		tmpl := fallbackDays[i%len(fallbackDays)]
		ex := make([]Exercise, len(tmpl.Exercises))
		copy(ex, tmpl.Exercises)
		p.WeeklyPlan[i] = Day{Day: i + 1, Focus: tmpl.Focus, Exercises: ex}
	}
	p.Stamp(start)
	return p
}
