package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"session-insights/internal/query"
)

// Focus selects what a narrative compares against the all-time figures.
type Focus string

const (
	FocusSession Focus = "session"
	FocusTrends  Focus = "trends"
)

const analysisRules = `Write a brief, friendly analysis of the user's gait and posture data.
Use ONLY the numbers provided. Do not diagnose or give medical advice.
Format exactly:
Summary: 1-2 sentences.
Observations: 2-3 points, each citing the numbers.
Recommendations: 2 practical, non-medical tips.
Safety: 1 sentence.`

// dataBlock is one labelled table handed to the model.
type dataBlock struct {
	label string
	rows  []query.Row
}

func block(label string, rs *query.ResultSet) dataBlock {
	if rs == nil {
		return dataBlock{label: label}
	}
	return dataBlock{label: label, rows: rs.Rows}
}

func focusLine(f Focus, window int) string {
	if f == FocusSession {
		return "Focus on this single session and its relation to all-time averages."
	}
	return fmt.Sprintf("Focus on the last-%d trends vs all-time averages.", window)
}

// narrate asks the model for the sectioned analysis.
func (o *Orchestrator) narrate(ctx context.Context, focus Focus, window int, question string, blocks ...dataBlock) (string, bool) {
	return o.askWithData(ctx, analysisRules+"\n"+focusLine(focus, window), question, blocks...)
}

// askWithData sends rules as the system prompt and the labelled rows as the
// user turn. The second return is true when the model is unavailable or
// answers with nothing.
func (o *Orchestrator) askWithData(ctx context.Context, rules, question string, blocks ...dataBlock) (string, bool) {
	var b strings.Builder
	if question != "" {
		fmt.Fprintf(&b, "Question: %s\n\n", question)
	}
	for _, d := range blocks {
		fmt.Fprintf(&b, "%s:\n%s\n", d.label, renderRows(d.rows))
	}

	text, unavailable := o.complete(ctx, o.withPersona(rules), strings.TrimSpace(b.String()))
	text = strings.TrimSpace(text)
	if unavailable || text == "" {
		return "", true
	}
	return text, false
}

// renderRows writes one line per row with columns sorted by name.
func renderRows(rows []query.Row) string {
	if len(rows) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+renderValue(r[k]))
		}
		lines = append(lines, "- "+strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n")
}

func renderValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(math.Round(x*100)/100, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(math.Round(float64(x)*100)/100, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
