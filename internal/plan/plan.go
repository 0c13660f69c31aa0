package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"session-insights/internal/common/validation"
)

// DefaultDays is the plan length when none is configured.
const DefaultDays = 14

const dateLayout = "2006-01-02"

var ErrInvalidPlan = errors.New("INVALID_PLAN")

// ValidationError lists every problem found in a plan document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPlan, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPlan }

// Problems returns the validation problems carried by err, or err's text.
func Problems(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Problems
	}
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}

type Plan struct {
	Summary     string   `json:"summary"`
	Goal        string   `json:"goal,omitempty"`
	WeeklyPlan  []Day    `json:"weekly_plan"`
	Safety      string   `json:"safety"`
	Progression string   `json:"progression,omitempty"`
	Measures    []string `json:"measures,omitempty"`
}

type Day struct {
	Day       int        `json:"day"`
	Date      string     `json:"date,omitempty"`
	Focus     string     `json:"focus"`
	Exercises []Exercise `json:"exercises"`
}

type Exercise struct {
	Name  string `json:"name"`
	Sets  int    `json:"sets"`
	Reps  Reps   `json:"reps"`
	Notes string `json:"notes,omitempty"`
}

// Reps is free text ("8 each", "20-30s"). Bare numbers are accepted and
// kept as their decimal text.
type Reps string

func (r *Reps) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = Reps(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("reps must be text or a number: %w", err)
	}
	*r = Reps(n.String())
	return nil
}

// Stamp assigns calendar dates, day 1 being start's date.
func (p *Plan) Stamp(start time.Time) {
	y, m, d := start.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, start.Location())
	for i := range p.WeeklyPlan {
		p.WeeklyPlan[i].Date = first.AddDate(0, 0, p.WeeklyPlan[i].Day-1).Format(dateLayout)
	}
}

// Planner validates and builds plans of a fixed length. It is immutable.
type Planner struct {
	days   int
	schema *validation.Schema
}

func NewPlanner(days int) (*Planner, error) {
	if days <= 0 {
		days = DefaultDays
	}
	s, err := validation.Compile([]byte(schemaFor(days)))
	if err != nil {
		return nil, fmt.Errorf("plan schema: %w", err)
	}
	return &Planner{days: days, schema: s}, nil
}

func (pl *Planner) Days() int { return pl.days }

// Parse extracts the JSON object from model text (code fences and
// surrounding prose are tolerated), validates it and decodes it.
func (pl *Planner) Parse(text string) (*Plan, error) {
	raw, ok := extractObject(text)
	if !ok {
		return nil, &ValidationError{Problems: []string{"no JSON object found"}}
	}
	if !json.Valid([]byte(raw)) {
		return nil, &ValidationError{Problems: []string{"response is not valid JSON"}}
	}
	if res := pl.schema.ValidateJSON([]byte(raw)); !res.Valid {
		return nil, &ValidationError{Problems: res.GetErrorMessages()}
	}

	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}
	if problems := pl.checkDays(p.WeeklyPlan); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &p, nil
}

// Validate checks an already decoded plan against the same rules as Parse.
func (pl *Planner) Validate(p *Plan) error {
	if p == nil {
		return &ValidationError{Problems: []string{"plan is nil"}}
	}
	if res := pl.schema.Validate(p); !res.Valid {
		return &ValidationError{Problems: res.GetErrorMessages()}
	}
	if problems := pl.checkDays(p.WeeklyPlan); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// checkDays requires each day number 1..days exactly once.
func (pl *Planner) checkDays(days []Day) []string {
	seen := make(map[int]bool, len(days))
	var problems []string
	for _, d := range days {
		if seen[d.Day] {
			problems = append(problems, fmt.Sprintf("weekly_plan: day %d appears more than once", d.Day))
		}
		seen[d.Day] = true
	}
	for i := 1; i <= pl.days; i++ {
		if !seen[i] {
			problems = append(problems, fmt.Sprintf("weekly_plan: day %d is missing", i))
		}
	}
	return problems
}

func extractObject(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func schemaFor(days int) string {
	return fmt.Sprintf(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["summary", "weekly_plan", "safety"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "goal": {"type": "string"},
    "safety": {"type": "string", "minLength": 1},
    "progression": {"type": "string"},
    "measures": {"type": "array", "items": {"type": "string"}},
    "weekly_plan": {
      "type": "array",
      "minItems": %[1]d,
      "maxItems": %[1]d,
      "items": {
        "type": "object",
        "required": ["day", "focus", "exercises"],
        "properties": {
          "day": {"type": "integer", "minimum": 1, "maximum": %[1]d},
          "date": {"type": "string"},
          "focus": {"type": "string", "minLength": 1},
          "exercises": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["name", "sets", "reps"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "sets": {"type": "integer", "minimum": 1},
                "reps": {"type": ["string", "number"], "minLength": 1},
                "notes": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`, days)
}
