package system

import (
	"fmt"

	"github.com/kballard/go-shellquote"
)

// SplitWords splits s into arguments using POSIX shell word rules: whitespace
// separates words, single and double quotes group, backslash escapes. No
// expansion of variables, globs or command substitution takes place.
func SplitWords(s string) ([]string, error) {
	words, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return words, nil
}
