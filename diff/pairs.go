package diff

import (
	"sort"
	"strings"

	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/flavour"
)

// pair holds the previous and next version of one schema element. A nil
// side means the element only exists in the other snapshot.
type pair[T any] struct {
	previous T
	next     T
}

// schemaPairs tracks every table of both snapshots keyed by name.
type schemaPairs struct {
	flavour flavour.Flavour
	tables  map[string]pair[*describe.Table]
}

// newSchemaPairs pairs up the tables of two snapshots. The engine's own
// bookkeeping table is ignored.
func newSchemaPairs(from, to *describe.Schema, f flavour.Flavour) *schemaPairs {
	sp := &schemaPairs{
		flavour: f,
		tables:  make(map[string]pair[*describe.Table]),
	}

	if from != nil {
		for i := range from.Tables {
			table := &from.Tables[i]
			if tableIgnored(table.Name) {
				continue
			}
			sp.tables[table.Name] = pair[*describe.Table]{previous: table}
		}
	}
	if to != nil {
		for i := range to.Tables {
			table := &to.Tables[i]
			if tableIgnored(table.Name) {
				continue
			}
			p := sp.tables[table.Name]
			p.next = table
			sp.tables[table.Name] = p
		}
	}

	return sp
}

// tableIgnored reports whether the differ skips a table entirely. Every
// engine-maintained table is skipped, the SQLite lock table included.
func tableIgnored(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), flavour.BookkeepingPrefix)
}

// createdTables returns tables that exist only in the next snapshot,
// sorted by name.
func (sp *schemaPairs) createdTables() []*describe.Table {
	var result []*describe.Table
	for _, p := range sp.tables {
		if p.next != nil && p.previous == nil {
			result = append(result, p.next)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// droppedTables returns tables that exist only in the previous snapshot,
// sorted by name.
func (sp *schemaPairs) droppedTables() []*describe.Table {
	var result []*describe.Table
	for _, p := range sp.tables {
		if p.previous != nil && p.next == nil {
			result = append(result, p.previous)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// tablePairs returns tables present in both snapshots, sorted by name.
func (sp *schemaPairs) tablePairs() []pair[*describe.Table] {
	var result []pair[*describe.Table]
	for _, p := range sp.tables {
		if p.previous != nil && p.next != nil {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].next.Name < result[j].next.Name })
	return result
}

// columnPairs pairs the columns of a table pair by name. Returned slices
// are sorted by column name for deterministic output.
func columnPairs(p pair[*describe.Table]) (created, dropped []*describe.Column, kept []pair[*describe.Column]) {
	prevColumns := make(map[string]*describe.Column)
	for i := range p.previous.Columns {
		col := &p.previous.Columns[i]
		prevColumns[col.Name] = col
	}

	seen := make(map[string]bool)
	for i := range p.next.Columns {
		col := &p.next.Columns[i]
		seen[col.Name] = true
		if prev, ok := prevColumns[col.Name]; ok {
			kept = append(kept, pair[*describe.Column]{previous: prev, next: col})
		} else {
			created = append(created, col)
		}
	}
	for i := range p.previous.Columns {
		col := &p.previous.Columns[i]
		if !seen[col.Name] {
			dropped = append(dropped, col)
		}
	}

	sort.Slice(created, func(i, j int) bool { return created[i].Name < created[j].Name })
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Name < dropped[j].Name })
	sort.Slice(kept, func(i, j int) bool { return kept[i].next.Name < kept[j].next.Name })
	return created, dropped, kept
}
