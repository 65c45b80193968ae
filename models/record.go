package models

// FieldExtraction is one strategy's answer for one field.
type FieldExtraction struct {
	// Field is the requested field name, e.g. "price".
	Field string `json:"field"`

	// Value is the extracted, normalized value.
	Value string `json:"value"`

	// Strategy tags the producing strategy: "structured", "selector",
	// "pattern" or "vision".
	Strategy string `json:"strategy"`

	// Confidence is the strategy's own certainty in [0,1] for this value,
	// before the strategy trust weight is applied.
	Confidence float64 `json:"confidence"`
}

// MergedRecord is the combined output of all strategies for one job.
// A field is present only when some strategy produced it above the
// configured confidence floor; missing fields are absent, never zero-filled.
type MergedRecord struct {
	// Fields maps field name to the winning extraction.
	Fields map[string]FieldExtraction `json:"fields"`

	// Confidence is the importance-weighted mean of the selected per-field
	// confidences.
	Confidence float64 `json:"confidence"`

	// Partial is true when any requested field is missing.
	Partial bool `json:"partial"`

	// Missing lists the requested fields no strategy produced.
	Missing []string `json:"missing,omitempty"`
}

// Value returns the winning value for a field, or "" when absent.
func (r *MergedRecord) Value(field string) string {
	if r == nil {
		return ""
	}
	return r.Fields[field].Value
}

// Has reports whether the record contains a value for the field.
func (r *MergedRecord) Has(field string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Fields[field]
	return ok
}
