// Package report turns query results into CSV artifacts and renders the scheduled digest.
package report

// Field is one named column value.
type Field struct {
	Name  string
	Value string
}

// Record is an ordered row. Column order of the first record defines the CSV header.
type Record []Field

// NewRecord builds a record from alternating name/value pairs. A trailing name without a
// value gets an empty value.
func NewRecord(pairs ...string) Record {
	r := make(Record, 0, (len(pairs)+1)/2)
	for i := 0; i < len(pairs); i += 2 {
		f := Field{Name: pairs[i]}
		if i+1 < len(pairs) {
			f.Value = pairs[i+1]
		}
		r = append(r, f)
	}
	return r
}

// Get returns the value of the named field.
func (r Record) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// FromFieldList converts rows shaped as lists of {field, value} pairs, which is how
// CloudWatch Logs Insights returns results. Column order follows the source.
func FromFieldList(rows [][]Field) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record(row))
	}
	return out
}
