package module

import (
	"fmt"

	"github.com/ncobase/modulith/merr"
)

// NewConfigError builds a fatal ConfigurationError for model-construction
// failures (invalid annotation, cyclic allowed-dependencies, ambiguous
// annotation, and the like).
func NewConfigError(msg string) error {
	return merr.NewConfigurationError(msg)
}

// NewDuplicateModuleError reports that id was derived more than once while
// building ApplicationModules, violating the uniqueness invariant.
func NewDuplicateModuleError(id string) error {
	return merr.NewConfigurationError(fmt.Sprintf("duplicate module identifier %q", id))
}
