package serviceutil

import (
	"fmt"
	"testing"

	crerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestHints(t *testing.T) {
	require.Empty(t, Hints(nil))
	require.Empty(t, Hints(fmt.Errorf("plain")))

	err := crerr.WithHint(crerr.New("no credentials"), "set REPEAT_GG_AUTH_DATA")
	err = fmt.Errorf("bootstrap: %w", err)
	require.Equal(t, []string{"set REPEAT_GG_AUTH_DATA"}, Hints(err))
}
