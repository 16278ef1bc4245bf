package recovery

import (
	"fmt"
	"strings"
)

// PromptFields renders a schema into a human-readable field list for
// inclusion in the request sent to the model. This nudges the model toward
// well-formed output; it is advisory, not a correctness guarantee.
func PromptFields(schema Schema) string {
	var sb strings.Builder

	sb.WriteString("Respond with a single JSON object containing exactly these fields:\n")
	for _, field := range schema.Fields {
		requirement := "optional"
		if field.Required {
			requirement = "required"
		}
		fmt.Fprintf(&sb, "  - %q (%s, %s)", field.Name, field.Type, requirement)
		if field.Description != "" {
			sb.WriteString(": " + field.Description)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("Return only the JSON object, with no surrounding prose or code fences.")

	return sb.String()
}
