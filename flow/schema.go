package flow

import "fmt"

// MergeKind is the merge rule of one state field.
type MergeKind int

const (
	// MergeScalar fields are last-writer-wins: a patch that leaves the
	// field unset preserves the previous value.
	MergeScalar MergeKind = iota

	// MergeAppend fields are append-only lists: the reducer
	// concatenates patch entries onto the previous value, so any
	// merge order of a patch set converges.
	MergeAppend
)

// FieldRule declares the merge rule for one named state field.
type FieldRule struct {
	Name string
	Kind MergeKind
}

// MergeSchema documents a state type's merge contract. Reducers should
// be written against a schema, and reducer tests verify permutation
// invariance of the MergeAppend subset.
type MergeSchema []FieldRule

// Validate rejects duplicate field names.
func (s MergeSchema) Validate() error {
	seen := make(map[string]bool, len(s))
	for _, rule := range s {
		if rule.Name == "" {
			return &EngineError{Message: "merge schema field with empty name", Code: "INVALID_SCHEMA"}
		}
		if seen[rule.Name] {
			return &EngineError{
				Message: fmt.Sprintf("merge schema field %q declared twice", rule.Name),
				Code:    "INVALID_SCHEMA",
			}
		}
		seen[rule.Name] = true
	}
	return nil
}

// AppendFields returns the names of all MergeAppend fields.
func (s MergeSchema) AppendFields() []string {
	var out []string
	for _, rule := range s {
		if rule.Kind == MergeAppend {
			out = append(out, rule.Name)
		}
	}
	return out
}
