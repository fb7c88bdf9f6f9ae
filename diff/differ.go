package diff

import (
	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/flavour"
)

// Diff computes the ordered steps that evolve the from snapshot into the
// to snapshot. It is a pure function over in-memory data; it never fails
// on well-formed snapshots. The flavour supplies dialect comparison rules
// and the capability set used to pick achievable strategies.
func Diff(from, to *describe.Schema, f flavour.Flavour) []Step {
	sp := newSchemaPairs(from, to, f)

	var steps []Step

	// Dropped tables. Foreign keys referencing them from surviving tables
	// are dropped by the table-pair comparison below.
	for _, table := range sp.droppedTables() {
		steps = append(steps, Step{Kind: StepDropTable, Table: table.Name})
	}

	// Created tables, with their foreign keys deferred into AddForeignKey
	// steps so references to other new tables always resolve.
	for _, table := range sp.createdTables() {
		steps = append(steps, Step{Kind: StepCreateTable, Table: table.Name, TableDef: table})
		for i := range table.ForeignKeys {
			steps = append(steps, Step{
				Kind:       StepAddForeignKey,
				Table:      table.Name,
				ForeignKey: &table.ForeignKeys[i],
			})
		}
		for i := range table.Indexes {
			steps = append(steps, Step{
				Kind:  StepCreateIndex,
				Table: table.Name,
				Index: &table.Indexes[i],
			})
		}
	}

	// Tables present in both snapshots.
	for _, p := range sp.tablePairs() {
		steps = append(steps, diffTable(p, f)...)
	}

	steps = substituteCapabilities(steps, f, from, to)
	return orderSteps(steps, from)
}

// diffTable compares one table pair.
func diffTable(p pair[*describe.Table], f flavour.Flavour) []Step {
	var steps []Step
	tableName := p.next.Name

	created, dropped, kept := columnPairs(p)

	for _, col := range created {
		steps = append(steps, Step{Kind: StepAddColumn, Table: tableName, Column: col})
	}
	for _, col := range dropped {
		steps = append(steps, Step{Kind: StepDropColumn, Table: tableName, ColumnName: col.Name})
	}
	for _, cp := range kept {
		if columnChanged(cp.previous, cp.next, f) {
			steps = append(steps, Step{
				Kind:       StepAlterColumn,
				Table:      tableName,
				Column:     cp.next,
				PrevColumn: cp.previous,
			})
		}
	}

	steps = append(steps, diffIndexes(p)...)
	steps = append(steps, diffForeignKeys(p)...)

	return steps
}

// columnChanged compares two column versions semantically per dialect,
// not by raw text.
func columnChanged(prev, next *describe.Column, f flavour.Flavour) bool {
	if !f.TypesEquivalent(prev.Type, next.Type) {
		return true
	}
	if prev.Nullable != next.Nullable {
		return true
	}
	if !f.DefaultsEquivalent(next.Type, prev.Default, next.Default) {
		return true
	}
	if prev.AutoIncrement != next.AutoIncrement {
		return true
	}
	return false
}

// diffIndexes compares indexes by structural equality. An index whose
// structure survives under a different name is treated as unchanged.
func diffIndexes(p pair[*describe.Table]) []Step {
	var steps []Step
	tableName := p.next.Name

	matchedPrev := make(map[int]bool)
	for i := range p.next.Indexes {
		next := &p.next.Indexes[i]
		found := false
		for j := range p.previous.Indexes {
			if matchedPrev[j] {
				continue
			}
			if indexesMatch(&p.previous.Indexes[j], next) {
				matchedPrev[j] = true
				found = true
				break
			}
		}
		if !found {
			steps = append(steps, Step{Kind: StepCreateIndex, Table: tableName, Index: next})
		}
	}
	for j := range p.previous.Indexes {
		if !matchedPrev[j] {
			steps = append(steps, Step{
				Kind:      StepDropIndex,
				Table:     tableName,
				IndexName: p.previous.Indexes[j].Name,
			})
		}
	}

	return steps
}

// indexesMatch compares two indexes by structure, ignoring names.
func indexesMatch(prev, next *describe.Index) bool {
	if prev.Unique != next.Unique {
		return false
	}
	if len(prev.Columns) != len(next.Columns) {
		return false
	}
	for i, col := range prev.Columns {
		if col != next.Columns[i] {
			return false
		}
	}
	return true
}

// diffForeignKeys compares foreign keys by structural equality.
func diffForeignKeys(p pair[*describe.Table]) []Step {
	var steps []Step
	tableName := p.next.Name

	matchedPrev := make(map[int]bool)
	for i := range p.next.ForeignKeys {
		next := &p.next.ForeignKeys[i]
		found := false
		for j := range p.previous.ForeignKeys {
			if matchedPrev[j] {
				continue
			}
			if foreignKeysMatch(&p.previous.ForeignKeys[j], next) {
				matchedPrev[j] = true
				found = true
				break
			}
		}
		if !found {
			steps = append(steps, Step{Kind: StepAddForeignKey, Table: tableName, ForeignKey: next})
		}
	}
	for j := range p.previous.ForeignKeys {
		if !matchedPrev[j] {
			steps = append(steps, Step{
				Kind:           StepDropForeignKey,
				Table:          tableName,
				ForeignKeyName: p.previous.ForeignKeys[j].Name,
			})
		}
	}

	return steps
}

// foreignKeysMatch compares two foreign keys by column list, referenced
// entity and referential actions, ignoring names.
func foreignKeysMatch(prev, next *describe.ForeignKey) bool {
	if prev.ReferencedTable != next.ReferencedTable {
		return false
	}
	if len(prev.Columns) != len(next.Columns) || len(prev.ReferencedColumns) != len(next.ReferencedColumns) {
		return false
	}
	for i, col := range prev.Columns {
		if col != next.Columns[i] {
			return false
		}
	}
	for i, col := range prev.ReferencedColumns {
		if col != next.ReferencedColumns[i] {
			return false
		}
	}
	return prev.OnDelete == next.OnDelete && prev.OnUpdate == next.OnUpdate
}
