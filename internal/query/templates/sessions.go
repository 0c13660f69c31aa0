package templates

import (
	"fmt"

	"session-insights/internal/models"
	"session-insights/internal/query"
	"session-insights/internal/query/internal/trust"
)

const listingColumns = `id, user_id, status, start_time, end_time,
       posture_score, gait_symmetry, balance_score, step_count,
       stride_time_s, contact_time_s, cadence_spm`

func buildDetail(l *Library, req models.RoutedRequest, identity interface{}) (query.Statement, error) {
	b := &binder{dialect: l.dialect}

	id, ok := req.SessionID()
	if !ok && req.Has(models.ParamSessionID) {
		return query.Statement{}, &ParamError{
			Intent: models.IntentSessionDetail,
			Param:  models.ParamSessionID,
			Reason: "not an integer in range",
		}
	}
	if ok {
		text := fmt.Sprintf("SELECT * FROM sessions WHERE user_id = %s AND id = %s",
			b.bind(identity), b.bind(id))
		return trust.Mint(text, b.args, true, query.OriginTemplate), nil
	}
	if req.Latest() {
		text := fmt.Sprintf("SELECT * FROM sessions WHERE user_id = %s ORDER BY end_time DESC LIMIT 1",
			b.bind(identity))
		return trust.Mint(text, b.args, true, query.OriginTemplate), nil
	}
	return query.Statement{}, &ParamError{
		Intent: models.IntentSessionDetail,
		Param:  models.ParamSessionID,
		Reason: "neither session_id nor latest is set",
	}
}

func buildListing(l *Library, req models.RoutedRequest, identity interface{}) (query.Statement, error) {
	n, ok := req.WindowSize()
	if !ok {
		return query.Statement{}, &ParamError{
			Intent: models.IntentSessionListing,
			Param:  models.ParamWindowSize,
			Reason: "missing or not an integer",
		}
	}
	if n < 1 {
		return query.Statement{}, &ParamError{
			Intent: models.IntentSessionListing,
			Param:  models.ParamWindowSize,
			Reason: fmt.Sprintf("must be at least 1, got %d", n),
		}
	}
	return l.listing(identity, l.clampWindow(n)), nil
}

func (l *Library) listing(identity interface{}, n int) query.Statement {
	b := &binder{dialect: l.dialect}
	text := fmt.Sprintf(`SELECT %s
FROM sessions
WHERE user_id = %s
ORDER BY start_time DESC
LIMIT %s`, listingColumns, b.bind(identity), b.bind(n))
	return trust.Mint(text, b.args, true, query.OriginTemplate)
}

// RecentSessions is the listing projection for the last window sessions.
func (l *Library) RecentSessions(identity interface{}, window int) query.Statement {
	return l.listing(identity, l.clampWindow(window))
}

// SessionAlerts lists alerts raised during one of the identity's sessions.
func (l *Library) SessionAlerts(identity interface{}, sessionID int64) query.Statement {
	b := &binder{dialect: l.dialect}
	text := fmt.Sprintf(`SELECT a.id, a.level, a.message
FROM alerts a
JOIN sessions s ON s.id = a.session_id
WHERE s.user_id = %s AND a.session_id = %s
ORDER BY a.id DESC
LIMIT 20`, b.bind(identity), b.bind(sessionID))
	return trust.Mint(text, b.args, true, query.OriginFixed)
}

// SessionRecommendations lists recommendations attached to one session.
func (l *Library) SessionRecommendations(identity interface{}, sessionID int64) query.Statement {
	b := &binder{dialect: l.dialect}
	text := fmt.Sprintf(`SELECT r.id, r.title, r.category, r.description
FROM recommendations r
JOIN sessions s ON s.id = r.session_id
WHERE s.user_id = %s AND r.session_id = %s
ORDER BY r.id DESC
LIMIT 20`, b.bind(identity), b.bind(sessionID))
	return trust.Mint(text, b.args, true, query.OriginFixed)
}
