package table

import (
	"slices"
	"strings"

	"form990/internal/models"
	"form990/internal/schema"
)

// LeadingColumns always open the output table when present.
var LeadingColumns = []string{"Ein", "OrganizationName"}

// Shape builds the output table. Columns are the union of record keys in first
// seen order, rearranged by ColumnOrder. Rows follow the record order.
func Shape(records []*models.Record) *models.Table {
	var keys []string

	seen := make(map[string]bool)

	for _, rec := range records {
		for _, k := range rec.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	columns := ColumnOrder(keys)
	rows := make([][]string, 0, len(records))

	for _, rec := range records {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = rec.Value(c)
		}

		rows = append(rows, row)
	}

	return &models.Table{Columns: columns, Rows: rows}
}

// ColumnOrder puts the leading columns first, then contractor columns sorted
// lexicographically, then everything else in its original order.
func ColumnOrder(keys []string) []string {
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}

	ordered := make([]string, 0, len(keys))
	leading := make(map[string]bool, len(LeadingColumns))

	for _, c := range LeadingColumns {
		if present[c] {
			ordered = append(ordered, c)
			leading[c] = true
		}
	}

	var contractors, others []string

	for _, k := range keys {
		switch {
		case leading[k]:
		case strings.HasPrefix(k, schema.ContractorPrefix):
			contractors = append(contractors, k)
		default:
			others = append(others, k)
		}
	}

	slices.Sort(contractors)

	ordered = append(ordered, contractors...)

	return append(ordered, others...)
}
