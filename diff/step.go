// Package diff computes ordered migration steps between two schema
// snapshots.
package diff

import (
	"fmt"
	"strings"

	"github.com/sqldrift/sqldrift/describe"
)

// StepKind identifies one kind of schema change.
type StepKind string

const (
	StepCreateTable    StepKind = "CreateTable"
	StepDropTable      StepKind = "DropTable"
	StepAddColumn      StepKind = "AddColumn"
	StepDropColumn     StepKind = "DropColumn"
	StepAlterColumn    StepKind = "AlterColumn"
	StepAddForeignKey  StepKind = "AddForeignKey"
	StepDropForeignKey StepKind = "DropForeignKey"
	StepCreateIndex    StepKind = "CreateIndex"
	StepDropIndex      StepKind = "DropIndex"
	StepRedefineTable  StepKind = "RedefineTable"
)

// Step is one schema change. Entities are referenced by name; schemas are
// snapshots in time, not shared mutable objects. The definition fields
// carry what the renderer needs for the step's kind.
type Step struct {
	Kind  StepKind
	Table string

	// TableDef is the full target definition for CreateTable and
	// RedefineTable steps.
	TableDef *describe.Table
	// PrevTableDef is the previous definition for RedefineTable; the
	// renderer copies the columns shared between the two definitions.
	PrevTableDef *describe.Table

	// Column is the desired definition for AddColumn and AlterColumn.
	Column *describe.Column
	// PrevColumn is the previous definition for AlterColumn.
	PrevColumn *describe.Column
	// ColumnName names the column for DropColumn.
	ColumnName string

	// Index is the desired definition for CreateIndex.
	Index *describe.Index
	// IndexName names the index for DropIndex.
	IndexName string

	// ForeignKey is the desired definition for AddForeignKey.
	ForeignKey *describe.ForeignKey
	// ForeignKeyName names the constraint for DropForeignKey.
	ForeignKeyName string

	// DroppedColumns lists columns a RedefineTable step discards.
	DroppedColumns []string
}

// String renders a human-readable description of the step.
func (s Step) String() string {
	switch s.Kind {
	case StepCreateTable:
		return fmt.Sprintf("create table %q", s.Table)
	case StepDropTable:
		return fmt.Sprintf("drop table %q", s.Table)
	case StepAddColumn:
		return fmt.Sprintf("add column %q to table %q", s.Column.Name, s.Table)
	case StepDropColumn:
		return fmt.Sprintf("drop column %q from table %q", s.ColumnName, s.Table)
	case StepAlterColumn:
		return fmt.Sprintf("alter column %q of table %q", s.Column.Name, s.Table)
	case StepAddForeignKey:
		return fmt.Sprintf("add foreign key on table %q referencing %q", s.Table, s.ForeignKey.ReferencedTable)
	case StepDropForeignKey:
		return fmt.Sprintf("drop foreign key %q from table %q", s.ForeignKeyName, s.Table)
	case StepCreateIndex:
		return fmt.Sprintf("create index %q on table %q (%s)", s.Index.Name, s.Table, strings.Join(s.Index.Columns, ", "))
	case StepDropIndex:
		return fmt.Sprintf("drop index %q on table %q", s.IndexName, s.Table)
	case StepRedefineTable:
		return fmt.Sprintf("redefine table %q", s.Table)
	default:
		return string(s.Kind)
	}
}
