// Package trust holds the only constructor for executable statements. Go's
// internal rule limits importers to packages under internal/query, which
// keeps minting inside the guard and the template library.
package trust

// Origin records which trusted path produced a statement.
type Origin string

// Statement is a read-only SQL statement cleared for execution.
type Statement struct {
	text          string
	params        []interface{}
	requiresScope bool
	origin        Origin
}

// Mint creates a Statement. Callers must have validated text already.
func Mint(text string, params []interface{}, requiresScope bool, origin Origin) Statement {
	cp := make([]interface{}, len(params))
	copy(cp, params)
	return Statement{text: text, params: cp, requiresScope: requiresScope, origin: origin}
}

func (s Statement) Text() string { return s.text }

// Params returns a copy of the positional parameters.
func (s Statement) Params() []interface{} {
	cp := make([]interface{}, len(s.params))
	copy(cp, s.params)
	return cp
}

func (s Statement) RequiresIdentityScope() bool { return s.requiresScope }

func (s Statement) Origin() Origin { return s.origin }

// IsZero reports whether s was declared rather than minted.
func (s Statement) IsZero() bool { return s.text == "" && s.origin == "" }
