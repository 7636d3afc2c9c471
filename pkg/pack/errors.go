package pack

import "fmt"

// SchemaError reports a malformed pack definition, including broken
// internal references (a template naming a failure mode the pack does
// not declare). Fatal at load time.
type SchemaError struct {
	Source string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("pack schema violation in %s: %s", e.Source, e.Detail)
}

// DuplicateIDError reports two pack files declaring the same id and
// version. Distinct versions of one id are allowed; exact duplicates
// are fatal at load time.
type DuplicateIDError struct {
	ID      string
	Version string
	Sources [2]string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate pack %s@%s declared by %s and %s", e.ID, e.Version, e.Sources[0], e.Sources[1])
}

// NotFoundError reports a lookup of a pack id absent from the catalog.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pack %q not found", e.ID)
}

// CoverageError reports an obligations_covered entry that names an
// obligation unknown to the registry and not marked proposed.
type CoverageError struct {
	PackID       string
	ObligationID string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("pack %s covers unknown obligation %q (not in registry, not marked %q)",
		e.PackID, e.ObligationID, proposedPrefix)
}
