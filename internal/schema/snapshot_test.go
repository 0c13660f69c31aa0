package schema

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
database: insoles
tables:
  - table: sessions
    columns:
      - {name: id, type: integer}
      - {name: user_id, type: text}
      - {name: posture_score, type: real}
  - table: alerts
    columns:
      - {name: id}
      - {name: session_id}
`

func TestParse_YAML(t *testing.T) {
	s, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "insoles", s.Database())
	assert.Len(t, s.Tables(), 2)
	assert.True(t, s.HasColumn("sessions", "POSTURE_SCORE"))
	assert.False(t, s.HasColumn("sessions", "password"))
	assert.False(t, s.HasColumn("users", "id"))

	tbl, ok := s.Table("Sessions")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "user_id", "posture_score"}, tbl.ColumnNames())
}

func TestParse_JSON(t *testing.T) {
	s, err := Parse([]byte(`{"database":"insoles","tables":[{"table":"sessions","columns":[{"name":"id","type":"int"}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Database: insoles\nTable sessions columns: id", s.Describe())
}

func TestDescribe(t *testing.T) {
	s, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t,
		"Database: insoles\nTable sessions columns: id, user_id, posture_score\nTable alerts columns: id, session_id",
		s.Describe())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no tables", "database: x\n"},
		{"unnamed table", "tables:\n  - columns: [{name: id}]\n"},
		{"duplicate table", "tables:\n  - table: a\n  - table: A\n"},
		{"not yaml", "tables: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	s, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	tables := s.Tables()
	tables[0].Columns[0].Name = "changed"
	tables[0].Name = "changed"

	assert.True(t, s.HasColumn("sessions", "id"))
	assert.Contains(t, s.Describe(), "Table sessions columns: id,")
}

func TestLoad_ShippedSnapshot(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "configs", "schema.yaml"))
	require.NoError(t, err)

	for _, table := range []string{"sessions", "alerts", "recommendations", "users"} {
		_, ok := s.Table(table)
		assert.True(t, ok, table)
	}
	assert.True(t, s.HasColumn("sessions", "user_id"))
	assert.True(t, s.HasColumn("sessions", "cadence_spm"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
