package guard

import (
	"session-insights/internal/query"
)

// Reason is the closed set of rejection causes.
type Reason string

const (
	ReasonEmpty             Reason = "empty"
	ReasonUnsafeVerb        Reason = "unsafe verb"
	ReasonUnsupportedSyntax Reason = "unsupported syntax"
	ReasonMalformedSetOp    Reason = "malformed set operation"
)

// Scope says whether the statement must be filtered to one identity.
type Scope struct {
	Required bool
	Identity interface{}
}

// Decision is either Accepted with a trusted statement or Rejected with a Reason.
type Decision struct {
	accepted  bool
	statement query.Statement
	reason    Reason
	detail    string
}

// Reject builds a rejected decision.
func Reject(reason Reason, detail string) Decision {
	return Decision{reason: reason, detail: detail}
}

// AcceptTrusted wraps a statement minted by the template library so fixed
// and guarded statements share one result type. The zero statement is
// rejected as empty.
func AcceptTrusted(stmt query.Statement) Decision {
	if stmt.IsZero() {
		return Reject(ReasonEmpty, "zero statement")
	}
	return accept(stmt)
}

func accept(stmt query.Statement) Decision {
	return Decision{accepted: true, statement: stmt}
}

func (d Decision) Accepted() bool { return d.accepted }

// Statement is the zero value when the decision is a rejection.
func (d Decision) Statement() query.Statement { return d.statement }

func (d Decision) Reason() Reason { return d.reason }

// Detail names the construct that triggered a rejection.
func (d Decision) Detail() string { return d.detail }

func (d Decision) String() string {
	if d.accepted {
		return "accepted"
	}
	return "rejected: " + string(d.reason)
}
