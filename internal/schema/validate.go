// internal/schema/validate.go
package schema

import "fmt"

// Validate applies the cross-entry rules to an already coerced entry
// list. It is pure: no mutation, no IO. Fatal findings come back as
// issue strings keyed by entry id; duplicate measurement/field pairs are
// warnings because the table still decodes, the duplicates just
// overwrite each other in the output groups.
func Validate(entries []Entry) (warnings, issues []string) {
	seenID := make(map[string]bool, len(entries))
	seenField := make(map[string]string, len(entries))

	for _, e := range entries {
		if want := e.Type.Words(); e.Count != want {
			issues = append(issues, fmt.Sprintf(
				"id %q: type %s needs count %d, got %d",
				e.ID, e.Type, want, e.Count))
		}
		if e.Count == 1 && e.ByteOrder != OrderAB {
			// Single-word reads decode the same under every order;
			// flag the stray key so the table stays honest.
			warnings = append(warnings, fmt.Sprintf(
				"id %q: byte_order %s has no effect with count 1",
				e.ID, e.ByteOrder))
		}

		if seenID[e.ID] {
			issues = append(issues, fmt.Sprintf("id %q: duplicate id", e.ID))
		}
		seenID[e.ID] = true

		key := e.Measurement + "\x00" + e.Field
		if first, dup := seenField[key]; dup {
			warnings = append(warnings, fmt.Sprintf(
				"id %q: measurement %q field %q already used by id %q",
				e.ID, e.Measurement, e.Field, first))
		} else {
			seenField[key] = e.ID
		}
	}
	return warnings, issues
}
