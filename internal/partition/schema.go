package partition

import (
	"errors"
	"fmt"

	"device-ingest/internal/models"
)

var ErrUnknownCategory = errors.New("unknown category")

// Category is a record kind. The set is closed: a new category needs a new
// schema entry below.
type Category string

const (
	Notifications Category = "notifications"
	SMS           Category = "sms"
	CallLogs      Category = "callLogs"
	Contacts      Category = "contacts"
	Keylogs       Category = "keylogs"
	Clipboard     Category = "clipboard"
	FileEvents    Category = "fileEvents"
)

// Kind is the storage type of a schema field.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field maps a payload key to its table column.
type Field struct {
	Name   string
	Column string
	Kind   Kind
}

// Schema is the fixed field set of one category.
type Schema struct {
	Category Category
	Fields   []Field

	newModel func() any
}

// FieldNames returns the payload keys in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by payload key.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasTimestamp reports whether records of this category carry a timestamp.
func (s Schema) HasTimestamp() bool {
	_, ok := s.Field("timestamp")
	return ok
}

// Model returns a zero value of the table model for this category.
func (s Schema) Model() any {
	return s.newModel()
}

var timestampField = Field{Name: "timestamp", Column: "timestamp", Kind: KindTime}

func str(name, column string) Field { return Field{Name: name, Column: column, Kind: KindString} }

var schemas = map[Category]Schema{
	Notifications: {
		Category: Notifications,
		Fields: []Field{
			str("packageName", "package_name"),
			str("title", "title"),
			str("text", "text"),
			str("appName", "app_name"),
			timestampField,
		},
		newModel: func() any { return &models.Notification{} },
	},
	SMS: {
		Category: SMS,
		Fields: []Field{
			str("address", "address"),
			str("type", "type"),
			str("body", "body"),
			timestampField,
		},
		newModel: func() any { return &models.SMS{} },
	},
	CallLogs: {
		Category: CallLogs,
		Fields: []Field{
			str("number", "number"),
			str("type", "type"),
			{Name: "duration", Column: "duration", Kind: KindInt},
			timestampField,
		},
		newModel: func() any { return &models.CallLog{} },
	},
	Contacts: {
		Category: Contacts,
		Fields: []Field{
			str("name", "name"),
			str("phoneNumber", "phone_number"),
			str("email", "email"),
		},
		newModel: func() any { return &models.Contact{} },
	},
	Keylogs: {
		Category: Keylogs,
		Fields: []Field{
			str("key", "key"),
			str("appPackage", "app_package"),
			timestampField,
		},
		newModel: func() any { return &models.Keylog{} },
	},
	Clipboard: {
		Category: Clipboard,
		Fields: []Field{
			str("content", "content"),
			timestampField,
		},
		newModel: func() any { return &models.ClipboardEntry{} },
	},
	FileEvents: {
		Category: FileEvents,
		Fields: []Field{
			str("filename", "filename"),
			str("eventType", "event_type"),
			str("directoryPath", "directory_path"),
			timestampField,
		},
		newModel: func() any { return &models.FileEvent{} },
	},
}

// ordered is the category listing order used by Categories.
var ordered = []Category{Notifications, SMS, CallLogs, Contacts, Keylogs, Clipboard, FileEvents}

// Categories lists every known category.
func Categories() []Category {
	out := make([]Category, len(ordered))
	copy(out, ordered)
	return out
}

// ParseCategory converts a route parameter into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := schemas[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// SchemaFor returns the fixed schema of category.
func SchemaFor(c Category) (Schema, error) {
	s, ok := schemas[c]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}
	return s, nil
}
