package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"session-insights/internal/query"
)

// Instruction is the user turn that accompanies Prompt.
const Instruction = "Return only the JSON object. No extra text."

// CorrectionInstruction is the user turn for the corrective call.
const CorrectionInstruction = "Return only the corrected JSON. No extra text."

const maxRecentInPrompt = 5

// Context is the data a plan is tailored to. Any part may be empty.
type Context struct {
	Averages query.Row
	Recent   []query.Row
	// Partial is set when a context fetch failed.
	Partial bool
}

var recentFields = []struct {
	key string
	col string
}{
	{"id", "id"},
	{"posture", "posture_score"},
	{"gait", "gait_symmetry"},
	{"balance", "balance_score"},
	{"steps", "step_count"},
}

// Prompt is the system instruction for a plan of pl.Days() days.
func (pl *Planner) Prompt(goal string, c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: create a simple, safe, personalized %d-day exercise plan aligned to the user's goal.\n", pl.days)
	b.WriteString("Rules:\n")
	b.WriteString("- Use ONLY the provided data; do not invent numbers or diagnoses.\n")
	b.WriteString("- Non-medical guidance only; default to gentle or moderate intensity if data is limited.\n")
	b.WriteString("- Alternate light and medium sessions; include 1-2 rest or active-recovery days per week.\n")
	b.WriteString("- Include warm-up or cool-down ideas in notes where helpful.\n")
	b.WriteString("Return ONLY valid JSON (no extra text) with this shape:\n")
	b.WriteString(`{"summary": "one-line overview", "weekly_plan": [{"day": 1, "focus": "core|balance|posture|gait|active-recovery|rest", "exercises": [{"name": "...", "sets": 2, "reps": "8 each", "notes": "..."}]}], "safety": "single sentence", "progression": "how to scale up safely", "measures": ["app metrics to watch"]}`)
	b.WriteString("\n")
	fmt.Fprintf(&b, "weekly_plan must contain exactly %d items (days 1..%d). Each item must include at least one exercise with name, sets, reps and notes. Rest days get a light mobility or walking item.\n", pl.days, pl.days)
	b.WriteString("If balance dipped recently, add stability drills. If posture in the recent window is below the all-time average, keep core volume moderate.\n")
	b.WriteString("If data is thin or mixed, keep the plan gentle and say so in summary.\n")

	fmt.Fprintf(&b, "\nGoal: %s\n", goal)
	if avg := formatAverages(c.Averages); avg != "" {
		fmt.Fprintf(&b, "Recent averages: %s\n", avg)
	} else {
		b.WriteString("Recent averages: unavailable\n")
	}
	recent := compactRecent(c.Recent)
	raw, _ := json.Marshal(recent)
	fmt.Fprintf(&b, "Recent sessions (first %d, compact): %s\n", maxRecentInPrompt, raw)
	fmt.Fprintf(&b, "Counts: recent=%d\n", len(c.Recent))
	if c.Partial {
		b.WriteString("Note: some history could not be loaded; keep the plan gentle.\n")
	}
	return b.String()
}

// CorrectionPrompt asks the model to fix a rejected plan.
func (pl *Planner) CorrectionPrompt(problems []string) string {
	var b strings.Builder
	b.WriteString("You returned an invalid or empty plan. ")
	b.WriteString("Fix it and return ONLY valid JSON with the required keys: ")
	fmt.Fprintf(&b, "summary, weekly_plan (%d entries), safety, progression, measures. ", pl.days)
	fmt.Fprintf(&b, "Ensure weekly_plan has %d day objects (day 1..%d), each with focus and at least 1 exercise with name, sets, reps, notes.", pl.days, pl.days)
	if len(problems) > 0 {
		b.WriteString("\nProblems found:\n")
		for _, p := range problems {
			b.WriteString("- ")
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatAverages(row query.Row) string {
	if len(row) == 0 {
		return ""
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := row.Float(k); ok {
			parts = append(parts, fmt.Sprintf("%s=%s", k, trimFloat(v)))
		}
	}
	return strings.Join(parts, ", ")
}

func compactRecent(rows []query.Row) []map[string]interface{} {
	if len(rows) > maxRecentInPrompt {
		rows = rows[:maxRecentInPrompt]
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]interface{}, len(recentFields))
		for _, f := range recentFields {
			if v, ok := r.Float(f.col); ok {
				m[f.key] = math.Round(v*100) / 100
			}
		}
		out = append(out, m)
	}
	return out
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
