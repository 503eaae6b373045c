package domain

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldBoolean  FieldType = "boolean"
	FieldSQLQuery FieldType = "sql_query"
)

// CustomFieldDefinition describes one user-defined column of an axis.
type CustomFieldDefinition struct {
	FieldName    string    `json:"field_name" yaml:"field_name" toml:"field_name" validate:"required,max=128"`
	Label        string    `json:"label,omitempty" yaml:"label" toml:"label"`
	Type         FieldType `json:"field_type" yaml:"field_type" toml:"field_type" validate:"required,oneof=text textarea number date select boolean sql_query"`
	IsRequired   bool      `json:"is_required" yaml:"is_required" toml:"is_required"`
	IsUnique     bool      `json:"is_unique" yaml:"is_unique" toml:"is_unique"`
	DefaultValue string    `json:"default_value,omitempty" yaml:"default_value" toml:"default_value"`
	Options      []string  `json:"options,omitempty" yaml:"options" toml:"options" validate:"required_if=Type select"`
	SQLQuery     string    `json:"sql_query,omitempty" yaml:"sql_query" toml:"sql_query" validate:"required_if=Type sql_query"`
	DisplayOrder int       `json:"display_order" yaml:"display_order" toml:"display_order" validate:"gte=0"`
}
