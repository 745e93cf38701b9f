package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SourcePagesKey is the JSON key carrying match provenance.
const SourcePagesKey = "source_pages"

// NormalisedFields is the result of field extraction: field name to value
// (dates as YYYY-MM-DD, everything else verbatim) plus the pages that
// produced a match. It serialises flat, for example
// {"inspection_date":"2023-07-15","result":"Satisfactory","source_pages":[1]}.
type NormalisedFields struct {
	values      map[string]string
	sourcePages []int
}

// NewNormalisedFields returns an empty field set with no source pages.
func NewNormalisedFields() *NormalisedFields {
	return &NormalisedFields{values: make(map[string]string), sourcePages: []int{}}
}

// FieldsOf builds a field set from plain values, as a caller holding
// previously extracted data would.
func FieldsOf(values map[string]string, pages ...int) *NormalisedFields {
	f := NewNormalisedFields()
	for k, v := range values {
		f.Set(k, v)
	}
	for _, p := range pages {
		f.AddSourcePage(p)
	}
	return f
}

// Get returns a field value.
func (f *NormalisedFields) Get(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.values[name]
	return v, ok
}

// Set stores a field value.
func (f *NormalisedFields) Set(name, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[name] = value
}

// Len returns the number of extracted fields.
func (f *NormalisedFields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.values)
}

// Names returns the extracted field names, sorted.
func (f *NormalisedFields) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.values))
	for k := range f.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values returns a copy of the field values.
func (f *NormalisedFields) Values() map[string]string {
	out := make(map[string]string, f.Len())
	if f == nil {
		return out
	}
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// AddSourcePage records provenance. Pages are kept unique and ascending.
func (f *NormalisedFields) AddSourcePage(page int) {
	i := sort.SearchInts(f.sourcePages, page)
	if i < len(f.sourcePages) && f.sourcePages[i] == page {
		return
	}
	f.sourcePages = append(f.sourcePages, 0)
	copy(f.sourcePages[i+1:], f.sourcePages[i:])
	f.sourcePages[i] = page
}

// SourcePages returns a copy of the provenance pages.
func (f *NormalisedFields) SourcePages() []int {
	if f == nil {
		return []int{}
	}
	return append([]int{}, f.sourcePages...)
}

func (f *NormalisedFields) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, f.Len()+1)
	for k, v := range f.values {
		out[k] = v
	}
	out[SourcePagesKey] = f.SourcePages()
	return json.Marshal(out)
}

func (f *NormalisedFields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = *NewNormalisedFields()
	for k, msg := range raw {
		if k == SourcePagesKey {
			var pages []int
			if err := json.Unmarshal(msg, &pages); err != nil {
				return fmt.Errorf("source_pages: %w", err)
			}
			for _, p := range pages {
				f.AddSourcePage(p)
			}
			continue
		}
		var v string
		if err := json.Unmarshal(msg, &v); err != nil {
			return fmt.Errorf("field %q: expected a string", k)
		}
		f.values[k] = v
	}
	return nil
}
