package analytics

// Table is a small column-oriented result set (sprint stats, velocity over time).
// Rows are stored as display strings; the prediction engine formats numbers.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether the table holds no rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// AppendRow adds a row, padding or truncating it to the column count.
func (t *Table) AppendRow(values ...string) {
	row := make([]string, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// Column returns the values of the named column, or nil if it does not exist.
func (t Table) Column(name string) []string {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		if idx < len(r) {
			out = append(out, r[idx])
		} else {
			out = append(out, "")
		}
	}
	return out
}
