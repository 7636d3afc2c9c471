package obligation

import "fmt"

// SchemaError reports a malformed obligation definition. It is fatal at
// load time: a catalog containing one malformed file never comes up.
type SchemaError struct {
	Source string // file path or logical source name
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("obligation schema violation in %s: %s", e.Source, e.Detail)
}

// DuplicateIDError reports two obligation sources declaring the same id.
// Fatal at load time.
type DuplicateIDError struct {
	ID      string
	Sources [2]string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate obligation id %q declared by %s and %s", e.ID, e.Sources[0], e.Sources[1])
}

// NotFoundError reports a lookup of an id absent from the registry.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("obligation %q not found", e.ID)
}
