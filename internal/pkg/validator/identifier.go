package validator

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidIdentifier is returned for table or column names that are unsafe
// to interpolate into DDL.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Identifier returns name unchanged when it is a safe SQL identifier.
func Identifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return name, nil
}

// MustIdentifier is Identifier for package-level constants.
func MustIdentifier(name string) string {
	id, err := Identifier(name)
	if err != nil {
		panic(err)
	}
	return id
}
