package recovery

import "fmt"

// FieldType enumerates the value types a schema field may declare
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// Field declares one expected field of a structured model response
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Description string
}

// Schema declares the shape a structured model response must conform to.
// Fields not declared in the schema are allowed and ignored.
type Schema struct {
	Name   string
	Fields []Field
}

// Validate checks a decoded object against the schema. A value that parses
// but violates the schema is a failure; violations are never silently
// coerced.
func (s Schema) Validate(value map[string]interface{}) error {
	for _, field := range s.Fields {
		raw, ok := value[field.Name]
		if !ok || raw == nil {
			if field.Required {
				return fmt.Errorf("missing required field %q", field.Name)
			}
			continue
		}

		if !matchesType(raw, field.Type) {
			return fmt.Errorf("field %q: expected %s, got %T", field.Name, field.Type, raw)
		}
	}
	return nil
}

func matchesType(value interface{}, t FieldType) bool {
	switch t {
	case FieldString:
		_, ok := value.(string)
		return ok
	case FieldNumber:
		switch value.(type) {
		case float64, float32, int, int64, uint64:
			return true
		}
		return false
	case FieldBoolean:
		_, ok := value.(bool)
		return ok
	case FieldObject:
		_, ok := value.(map[string]interface{})
		return ok
	case FieldArray:
		_, ok := value.([]interface{})
		return ok
	default:
		return true
	}
}
