// Package schema loads the database snapshot that synthesis prompts are
// grounded on. A Snapshot is read once at startup and never modified.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidSnapshot = errors.New("INVALID_SCHEMA_SNAPSHOT")

type Column struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
}

type Table struct {
	Name    string   `yaml:"table" json:"table"`
	Columns []Column `yaml:"columns" json:"columns"`
}

// ColumnNames returns the table's column names in snapshot order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

type document struct {
	Database string  `yaml:"database"`
	Tables   []Table `yaml:"tables"`
}

// Snapshot is an immutable view of the tables a generated query may use.
type Snapshot struct {
	database string
	tables   []Table
	index    map[string]int
}

// Load reads a snapshot from a YAML or JSON file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema snapshot %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a snapshot. JSON input is accepted since it is valid YAML.
func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("%w: no tables", ErrInvalidSnapshot)
	}

	s := &Snapshot{
		database: doc.Database,
		tables:   make([]Table, 0, len(doc.Tables)),
		index:    make(map[string]int, len(doc.Tables)),
	}
	for _, t := range doc.Tables {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: table without a name", ErrInvalidSnapshot)
		}
		if _, dup := s.index[strings.ToLower(name)]; dup {
			return nil, fmt.Errorf("%w: duplicate table %q", ErrInvalidSnapshot, name)
		}
		cols := make([]Column, len(t.Columns))
		copy(cols, t.Columns)
		s.index[strings.ToLower(name)] = len(s.tables)
		s.tables = append(s.tables, Table{Name: name, Columns: cols})
	}
	return s, nil
}

func (s *Snapshot) Database() string { return s.database }

// Tables returns a copy of the table list.
func (s *Snapshot) Tables() []Table {
	out := make([]Table, len(s.tables))
	for i, t := range s.tables {
		cols := make([]Column, len(t.Columns))
		copy(cols, t.Columns)
		out[i] = Table{Name: t.Name, Columns: cols}
	}
	return out
}

// Table looks a table up by case-insensitive name.
func (s *Snapshot) Table(name string) (Table, bool) {
	i, ok := s.index[strings.ToLower(name)]
	if !ok {
		return Table{}, false
	}
	t := s.tables[i]
	cols := make([]Column, len(t.Columns))
	copy(cols, t.Columns)
	return Table{Name: t.Name, Columns: cols}, true
}

func (s *Snapshot) HasColumn(table, column string) bool {
	i, ok := s.index[strings.ToLower(table)]
	if !ok {
		return false
	}
	for _, c := range s.tables[i].Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}

// Describe renders the snapshot as prompt context, one line per table.
func (s *Snapshot) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s", s.database)
	for _, t := range s.tables {
		fmt.Fprintf(&b, "\nTable %s columns: %s", t.Name, strings.Join(t.ColumnNames(), ", "))
	}
	return b.String()
}
