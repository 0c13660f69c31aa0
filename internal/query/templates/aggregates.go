package templates

import (
	"fmt"

	"session-insights/internal/query"
	"session-insights/internal/query/internal/trust"
)

// recentWindowCTEs selects the last n sessions by start time and ranks
// their durations. The median is the mean of ranks (cnt+1)/2 and (cnt+2)/2
// in integer arithmetic, which is the middle value for odd counts and the
// two middle values for even counts.
func (l *Library) recentWindowCTEs(b *binder, identity interface{}, n int) string {
	dur := l.dialect.DurationSeconds("start_time", "end_time")
	return fmt.Sprintf(`WITH recent AS (
  SELECT id, start_time, end_time, posture_score, gait_symmetry, balance_score, step_count
  FROM sessions
  WHERE user_id = %s
  ORDER BY start_time DESC
  LIMIT %d
),
dur AS (
  SELECT id,
         %s AS dur_sec,
         ROW_NUMBER() OVER (ORDER BY %s) AS rn,
         COUNT(*) OVER () AS cnt
  FROM recent
),
median_dur AS (
  SELECT AVG(dur_sec) AS med_sec
  FROM dur
  WHERE rn IN ((cnt + 1) / 2, (cnt + 2) / 2)
)`, b.bind(identity), n, dur, dur)
}

// TrendSummary returns one (metric, value) row per figure for the last
// window sessions.
func (l *Library) TrendSummary(identity interface{}, window int) query.Statement {
	b := &binder{dialect: l.dialect}
	text := l.recentWindowCTEs(b, identity, l.clampWindow(window)) + `
SELECT 'posture_score' AS metric, AVG(posture_score) AS value FROM recent
UNION ALL
SELECT 'gait_symmetry', AVG(gait_symmetry) FROM recent
UNION ALL
SELECT 'balance_score', AVG(balance_score) FROM recent
UNION ALL
SELECT 'median_duration_s', med_sec FROM median_dur
UNION ALL
SELECT 'short_sessions', COUNT(*) FROM dur, median_dur WHERE dur.dur_sec < median_dur.med_sec
UNION ALL
SELECT 'recent_alerts', COUNT(*) FROM alerts WHERE session_id IN (SELECT id FROM recent)
UNION ALL
SELECT 'recent_recommendations', COUNT(*) FROM recommendations WHERE session_id IN (SELECT id FROM recent)`
	return trust.Mint(text, b.args, true, query.OriginFixed)
}

// Overview column names. The _10 suffix refers to the recent window,
// whatever its size.
const (
	ColTotalSessions   = "total_sessions"
	ColAvgPostureAll   = "avg_posture_all"
	ColAvgGaitAll      = "avg_gait_all"
	ColAvgBalanceAll   = "avg_balance_all"
	ColAvgStepsAll     = "avg_steps_all"
	ColAvgPosture10    = "avg_posture_10"
	ColAvgGait10       = "avg_gait_10"
	ColAvgBalance10    = "avg_balance_10"
	ColAvgSteps10      = "avg_steps_10"
	ColMedianDuration  = "median_duration_s"
	ColShortSessions10 = "short_sessions_10"
	ColRecentAlerts    = "recent_alerts"
	ColRecentRecs      = "recent_recs"
)

// HealthOverview returns a single row comparing all-time averages with the
// recent window, plus short-session, alert and recommendation counts.
func (l *Library) HealthOverview(identity interface{}, window int) query.Statement {
	b := &binder{dialect: l.dialect}
	ctes := l.recentWindowCTEs(b, identity, l.clampWindow(window))
	text := ctes + fmt.Sprintf(`,
long_hist AS (
  SELECT COUNT(*) AS total_sessions,
         AVG(posture_score) AS avg_posture_all,
         AVG(gait_symmetry) AS avg_gait_all,
         AVG(balance_score) AS avg_balance_all,
         AVG(step_count) AS avg_steps_all
  FROM sessions
  WHERE user_id = %s
),
recent_stats AS (
  SELECT AVG(posture_score) AS avg_posture_10,
         AVG(gait_symmetry) AS avg_gait_10,
         AVG(balance_score) AS avg_balance_10,
         AVG(step_count) AS avg_steps_10
  FROM recent
),
short_sess AS (
  SELECT COUNT(*) AS short_sessions_10
  FROM dur, median_dur
  WHERE dur.dur_sec < median_dur.med_sec
),
alerts_recent AS (
  SELECT COUNT(*) AS recent_alerts FROM alerts WHERE session_id IN (SELECT id FROM recent)
),
recs_recent AS (
  SELECT COUNT(*) AS recent_recs FROM recommendations WHERE session_id IN (SELECT id FROM recent)
)
SELECT lh.total_sessions,
       lh.avg_posture_all, lh.avg_gait_all, lh.avg_balance_all, lh.avg_steps_all,
       rs.avg_posture_10, rs.avg_gait_10, rs.avg_balance_10, rs.avg_steps_10,
       md.med_sec AS median_duration_s,
       ss.short_sessions_10,
       ar.recent_alerts,
       rr.recent_recs
FROM long_hist lh
CROSS JOIN recent_stats rs
CROSS JOIN median_dur md
CROSS JOIN short_sess ss
CROSS JOIN alerts_recent ar
CROSS JOIN recs_recent rr`, b.bind(identity))
	return trust.Mint(text, b.args, true, query.OriginFixed)
}

// WindowAverages summarizes the last window sessions in one row. Used as
// plan context.
func (l *Library) WindowAverages(identity interface{}, window int) query.Statement {
	b := &binder{dialect: l.dialect}
	text := fmt.Sprintf(`WITH recent AS (
  SELECT posture_score, gait_symmetry, balance_score, step_count, cadence_spm
  FROM sessions
  WHERE user_id = %s
  ORDER BY start_time DESC
  LIMIT %d
)
SELECT COUNT(*) AS sessions,
       AVG(posture_score) AS avg_posture,
       AVG(gait_symmetry) AS avg_gait,
       AVG(balance_score) AS avg_balance,
       AVG(step_count) AS avg_steps,
       AVG(cadence_spm) AS avg_cadence
FROM recent`, b.bind(identity), l.clampWindow(window))
	return trust.Mint(text, b.args, true, query.OriginFixed)
}
