package templates

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"session-insights/internal/query"
)

const testSchema = `
CREATE TABLE sessions (
  id INTEGER PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  posture_score REAL,
  gait_symmetry REAL,
  balance_score REAL,
  step_count INTEGER,
  stride_time_s REAL,
  contact_time_s REAL,
  cadence_spm REAL
);
CREATE TABLE alerts (id INTEGER PRIMARY KEY, session_id INTEGER, level TEXT, message TEXT);
CREATE TABLE recommendations (id INTEGER PRIMARY KEY, session_id INTEGER, title TEXT, category TEXT, description TEXT);
`

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// seed inserts one session per duration, one hour apart, oldest first.
func seed(t *testing.T, db *sql.DB, user string, durations []int, firstID int) {
	t.Helper()
	for i, d := range durations {
		start := base.Add(time.Duration(i) * time.Hour)
		end := start.Add(time.Duration(d) * time.Second)
		_, err := db.Exec(`INSERT INTO sessions
			(id, user_id, status, start_time, end_time, posture_score, gait_symmetry, balance_score, step_count, stride_time_s, contact_time_s, cadence_spm)
			VALUES (?, ?, 'completed', ?, ?, ?, ?, ?, ?, 1.1, 0.6, 105)`,
			firstID+i, user,
			start.Format("2006-01-02 15:04:05"), end.Format("2006-01-02 15:04:05"),
			70+i, 90, 80, 1000*(i+1))
		require.NoError(t, err)
	}
}

func trendFigures(t *testing.T, db *sql.DB, stmt query.Statement) map[string]float64 {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), stmt.Text(), stmt.Params()...)
	require.NoError(t, err)
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var metric string
		var value sql.NullFloat64
		require.NoError(t, rows.Scan(&metric, &value))
		out[metric] = value.Float64
	}
	require.NoError(t, rows.Err())
	return out
}

// ==========================
// Median and short sessions
// ==========================

func TestTrendSummary_Median(t *testing.T) {
	tests := []struct {
		name       string
		durations  []int
		window     int
		wantMedian float64
		wantShort  float64
	}{
		{"window 1", []int{60}, 1, 60, 0},
		{"window 2 averages the middle pair", []int{60, 120}, 2, 90, 1},
		{"window 3 takes the middle", []int{30, 90, 60}, 3, 60, 1},
		{"window 10", []int{100, 20, 70, 10, 90, 40, 60, 30, 80, 50}, 10, 55, 5},
		{"all equal has no short sessions", []int{50, 50, 50, 50}, 4, 50, 0},
		{"only the most recent window counts", []int{1000, 1000, 10, 20, 30}, 3, 20, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupSQLite(t)
			seed(t, db, "u-1", tt.durations, 1)
			seed(t, db, "u-2", []int{5, 5, 5, 5, 5}, 100)

			lib := New(Config{Dialect: query.SQLite})
			got := trendFigures(t, db, lib.TrendSummary("u-1", tt.window))

			assert.InDelta(t, tt.wantMedian, got["median_duration_s"], 1e-9)
			assert.InDelta(t, tt.wantShort, got["short_sessions"], 1e-9)
		})
	}
}

func TestTrendSummary_AveragesAndCounts(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db, "u-1", []int{60, 60, 60}, 1)
	_, err := db.Exec(`INSERT INTO alerts (session_id, level, message) VALUES (3, 'warn', 'lean'), (1, 'info', 'ok'), (99, 'warn', 'other')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO recommendations (session_id, title, category, description) VALUES (2, 'Stretch', 'mobility', '...')`)
	require.NoError(t, err)

	lib := New(Config{Dialect: query.SQLite})
	got := trendFigures(t, db, lib.TrendSummary("u-1", 2))

	// Window 2 holds sessions 2 and 3 (posture 71 and 72).
	assert.InDelta(t, 71.5, got["posture_score"], 1e-9)
	assert.InDelta(t, 90, got["gait_symmetry"], 1e-9)
	assert.InDelta(t, 1, got["recent_alerts"], 1e-9)
	assert.InDelta(t, 1, got["recent_recommendations"], 1e-9)
}

func TestTrendSummary_NoSessions(t *testing.T) {
	db := setupSQLite(t)
	got := trendFigures(t, db, New(Config{Dialect: query.SQLite}).TrendSummary("nobody", 10))
	assert.Equal(t, float64(0), got["short_sessions"])
	assert.Equal(t, float64(0), got["recent_alerts"])
}

// ==========================
// Overview
// ==========================

func TestHealthOverview_SingleRow(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db, "u-1", []int{40, 40, 40, 40, 40, 100, 20, 60}, 1)

	stmt := New(Config{Dialect: query.SQLite}).HealthOverview("u-1", 3)
	rows, err := db.QueryContext(context.Background(), stmt.Text(), stmt.Params()...)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{
		ColTotalSessions,
		ColAvgPostureAll, ColAvgGaitAll, ColAvgBalanceAll, ColAvgStepsAll,
		ColAvgPosture10, ColAvgGait10, ColAvgBalance10, ColAvgSteps10,
		ColMedianDuration, ColShortSessions10, ColRecentAlerts, ColRecentRecs,
	}, cols)

	require.True(t, rows.Next())
	vals := make([]sql.NullFloat64, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	require.NoError(t, rows.Scan(ptrs...))
	assert.False(t, rows.Next(), "overview must be a single row")

	byName := map[string]float64{}
	for i, c := range cols {
		byName[c] = vals[i].Float64
	}
	assert.Equal(t, float64(8), byName[ColTotalSessions])
	assert.InDelta(t, 73.5, byName[ColAvgPostureAll], 1e-9)
	// Last three sessions: durations 100, 20, 60 and posture 75, 76, 77.
	assert.InDelta(t, 76, byName[ColAvgPosture10], 1e-9)
	assert.InDelta(t, 60, byName[ColMedianDuration], 1e-9)
	assert.Equal(t, float64(1), byName[ColShortSessions10])
}

func TestWindowAverages(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db, "u-1", []int{60, 60, 60, 60}, 1)

	stmt := New(Config{Dialect: query.SQLite}).WindowAverages("u-1", 2)
	var n int
	var posture, gait, balance, steps, cadence float64
	err := db.QueryRowContext(context.Background(), stmt.Text(), stmt.Params()...).
		Scan(&n, &posture, &gait, &balance, &steps, &cadence)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.InDelta(t, 72.5, posture, 1e-9)
	assert.InDelta(t, 3500, steps, 1e-9)
	assert.InDelta(t, 105, cadence, 1e-9)
}

func TestDetailTemplates_RunOnSQLite(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db, "u-1", []int{60, 60, 60}, 1)
	seed(t, db, "u-2", []int{60}, 50)
	lib := New(Config{Dialect: query.SQLite})

	count := func(stmt query.Statement) int {
		rows, err := db.Query(stmt.Text(), stmt.Params()...)
		require.NoError(t, err)
		defer rows.Close()
		n := 0
		for rows.Next() {
			n++
		}
		return n
	}

	_, err := db.Exec(`INSERT INTO alerts (session_id, level, message) VALUES (50, 'warn', 'not yours')`)
	require.NoError(t, err)

	assert.Equal(t, 3, count(lib.RecentSessions("u-1", 10)))
	assert.Equal(t, 0, count(lib.SessionAlerts("u-1", 50)), "other users' sessions stay hidden")

	stmt, err := lib.Build(detailRequest(map[string]interface{}{"latest": true}), "u-1")
	require.NoError(t, err)
	var id int
	require.NoError(t, db.QueryRow(stmt.Text(), stmt.Params()...).Scan(&id, new(string), new(string),
		new(string), new(string), new(float64), new(float64), new(float64), new(int), new(float64), new(float64), new(float64)))
	assert.Equal(t, 3, id, "latest session for u-1")
}
