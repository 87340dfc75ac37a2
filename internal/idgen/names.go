package idgen

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// ValidateName checks that name is usable as an agent identifier and as a
// file name: lowercase letters, digits, dashes and underscores, max 64
// characters.
func ValidateName(name string) error {
	if len(name) > 64 {
		return fmt.Errorf("name too long (max 64 characters)")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name %q is invalid: must match %s", name, namePattern.String())
	}
	return nil
}
