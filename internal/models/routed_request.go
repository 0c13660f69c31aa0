package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RoutedRequest is the router's output. It is immutable: accessors return
// copies and WithParam returns a new value.
type RoutedRequest struct {
	mode     Mode
	intent   Intent
	params   map[string]interface{}
	question string
}

// NewRoutedRequest copies params so later caller mutation has no effect.
func NewRoutedRequest(mode Mode, intent Intent, params map[string]interface{}) RoutedRequest {
	cp := make(map[string]interface{}, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return RoutedRequest{mode: mode, intent: intent, params: cp}
}

func (r RoutedRequest) Mode() Mode     { return r.mode }
func (r RoutedRequest) Intent() Intent { return r.intent }

// Question is the text the request was routed from; empty when the request
// was built directly.
func (r RoutedRequest) Question() string { return r.question }

func (r RoutedRequest) WithQuestion(q string) RoutedRequest {
	r.params = r.Parameters()
	r.question = q
	return r
}

func (r RoutedRequest) Param(key string) (interface{}, bool) {
	v, ok := r.params[key]
	return v, ok
}

// Parameters returns a copy of the parameter map.
func (r RoutedRequest) Parameters() map[string]interface{} {
	cp := make(map[string]interface{}, len(r.params))
	for k, v := range r.params {
		cp[k] = v
	}
	return cp
}

// Has reports whether key was supplied, valid or not.
func (r RoutedRequest) Has(key string) bool {
	_, ok := r.params[key]
	return ok
}

func (r RoutedRequest) WithParam(key string, value interface{}) RoutedRequest {
	next := r.Parameters()
	next[key] = value
	return RoutedRequest{mode: r.mode, intent: r.intent, params: next, question: r.question}
}

// SessionID returns the explicit session target, if any.
func (r RoutedRequest) SessionID() (int64, bool) {
	v, ok := r.params[ParamSessionID]
	if !ok {
		return 0, false
	}
	return asInt(v)
}

func (r RoutedRequest) Latest() bool {
	b, _ := r.params[ParamLatest].(bool)
	return b
}

// WindowSize returns the requested window. ok is false when the parameter
// is absent or is not an integer.
func (r RoutedRequest) WindowSize() (int, bool) {
	v, ok := r.params[ParamWindowSize]
	if !ok {
		return 0, false
	}
	n, ok := asInt(v)
	if !ok || n > math.MaxInt || n < math.MinInt {
		return 0, false
	}
	return int(n), true
}

// WindowOr returns the window size or def when unset or invalid.
func (r RoutedRequest) WindowOr(def int) int {
	if n, ok := r.WindowSize(); ok && n > 0 {
		return n
	}
	return def
}

func (r RoutedRequest) Goal() string {
	if g, ok := r.params[ParamGoal].(string); ok && g != "" {
		return g
	}
	return DefaultGoal
}

func (r RoutedRequest) String() string {
	return fmt.Sprintf("%s/%s %v", r.mode, r.intent, r.params)
}

// asInt accepts the numeric shapes that reach us from Go callers and from
// decoded JSON job variables.
func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

type routedRequestJSON struct {
	Mode       Mode                   `json:"mode"`
	Intent     Intent                 `json:"intent"`
	Parameters map[string]interface{} `json:"parameters"`
	Question   string                 `json:"question,omitempty"`
}

func (r RoutedRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(routedRequestJSON{
		Mode:       r.mode,
		Intent:     r.intent,
		Parameters: r.Parameters(),
		Question:   r.question,
	})
}

// UnmarshalJSON rejects unknown modes and intents.
func (r *RoutedRequest) UnmarshalJSON(data []byte) error {
	var raw routedRequestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Intent.Valid() {
		return fmt.Errorf("unknown intent %q", raw.Intent)
	}
	if raw.Mode == "" {
		spec, _ := SpecFor(raw.Intent)
		raw.Mode = spec.Mode
	}
	if !raw.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", raw.Mode)
	}
	*r = NewRoutedRequest(raw.Mode, raw.Intent, raw.Parameters).WithQuestion(raw.Question)
	return nil
}
