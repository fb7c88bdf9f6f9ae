// Package describe provides database schema introspection.
package describe

import (
	"context"
	"database/sql"
	"errors"
)

// ErrUnsupportedBackend is returned when no describer exists for a backend.
var ErrUnsupportedBackend = errors.New("describe: unsupported backend")

// Describer reads a live database and produces a schema snapshot.
type Describer interface {
	Describe(ctx context.Context) (*Schema, error)
}

// Schema is an immutable snapshot of a database schema.
type Schema struct {
	Tables    []Table
	Enums     []Enum
	Sequences []Sequence
}

// Table represents a database table.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  *PrimaryKey
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// Column represents a table column.
type Column struct {
	Name          string
	Type          string
	Nullable      bool
	Default       *string
	AutoIncrement bool
}

// PrimaryKey represents a primary key constraint.
type PrimaryKey struct {
	Name    string
	Columns []string
}

// Index represents a database index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// ForeignKey represents a foreign key constraint.
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
	OnUpdate          string
}

// Enum represents a database enum type.
type Enum struct {
	Name   string
	Values []string
}

// Sequence represents a database sequence.
type Sequence struct {
	Name string
}

// Table returns the table with the given name, or nil if absent.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Column returns the column with the given name, or nil if absent.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Index returns the index with the given name, or nil if absent.
func (t *Table) Index(name string) *Index {
	for i := range t.Indexes {
		if t.Indexes[i].Name == name {
			return &t.Indexes[i]
		}
	}
	return nil
}

// ForeignKey returns the foreign key with the given name, or nil if absent.
func (t *Table) ForeignKey(name string) *ForeignKey {
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].Name == name {
			return &t.ForeignKeys[i]
		}
	}
	return nil
}

// NewDescriber creates a describer for the given backend.
func NewDescriber(db *sql.DB, backend string) (Describer, error) {
	switch backend {
	case "postgres", "postgresql":
		return &PostgresDescriber{db: db}, nil
	case "mysql":
		return &MySQLDescriber{db: db}, nil
	case "sqlite":
		return &SQLiteDescriber{db: db}, nil
	case "sqlserver", "mssql":
		return &SQLServerDescriber{db: db}, nil
	default:
		return nil, ErrUnsupportedBackend
	}
}
