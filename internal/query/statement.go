package query

import (
	"strconv"
	"strings"

	"session-insights/internal/query/internal/trust"
)

// Statement is a trusted, executable statement. Outside internal/query it
// can only be obtained from the guard or the template library.
type Statement = trust.Statement

// Origin is the trusted path a Statement came from.
type Origin = trust.Origin

const (
	OriginTemplate Origin = "template"
	OriginFixed    Origin = "fixed"
	OriginGuarded  Origin = "guarded"
)

// Untrusted is statement text that has not been through the guard, such as
// model output or a cache entry.
type Untrusted string

// Row is one result row keyed by column name.
type Row map[string]interface{}

// ResultSet holds rows in the order the store returned them.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

func (r *ResultSet) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// First returns the first row, or nil for an empty set.
func (r *ResultSet) First() Row {
	if r.Empty() {
		return nil
	}
	return r.Rows[0]
}

// Float reads a numeric column, tolerating the shapes drivers return.
func (r Row) Float(col string) (float64, bool) {
	return toFloat(r[col])
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case []byte:
		return toFloat(string(n))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
