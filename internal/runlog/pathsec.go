package runlog

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrUnsafeName = errors.New("unsafe file name")

// safeNameRe restricts log and transcript file names to characters
// that cannot escape the configured directory.
var safeNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func safeName(s string) (string, error) {
	if !safeNameRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, s)
	}
	return s, nil
}
