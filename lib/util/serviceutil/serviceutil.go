package serviceutil

import (
	"fmt"
	"log/slog"
	"os"

	crerr "github.com/cockroachdb/errors"
)

// Fatal logs err, prints any hints attached to it and exits.
func Fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	for _, hint := range crerr.GetAllHints(err) {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	}
	os.Exit(1)
}

// Hints returns the user facing hints attached anywhere in err's chain.
func Hints(err error) []string {
	if err == nil {
		return nil
	}
	return crerr.GetAllHints(err)
}
