package definition

import (
	"fmt"
	"strings"
)

const (
	definitionErrorTemplateConstant          = "invalid migration definition %s: %s"
	definitionErrorWithCauseTemplateConstant = "invalid migration definition %s: %v"
	problemSeparatorConstant                 = "; "
	unnamedSourceLabelConstant               = "<input>"
)

// DefinitionError reports a definition that cannot be used. It is fatal before any target is touched.
type DefinitionError struct {
	Path     string
	Problems []string
	Cause    error
}

// Error describes every problem found.
func (definitionError DefinitionError) Error() string {
	source := definitionError.Path
	if len(source) == 0 {
		source = unnamedSourceLabelConstant
	}
	if len(definitionError.Problems) == 0 {
		return fmt.Sprintf(definitionErrorWithCauseTemplateConstant, source, definitionError.Cause)
	}
	return fmt.Sprintf(definitionErrorTemplateConstant, source, strings.Join(definitionError.Problems, problemSeparatorConstant))
}

// Unwrap exposes the underlying parse or read error.
func (definitionError DefinitionError) Unwrap() error {
	return definitionError.Cause
}
