package htmlutil

import (
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	sel, err := Fragment("<div class=\"x\">\n  <p>Entry\u200b</p><p>  Free\t Entry</p></div>")
	require.NoError(t, err)
	require.Equal(t, "div", goquery.NodeName(sel))
	require.Equal(t, "Entry Free Entry", CleanText(sel))
}

func TestOwnText(t *testing.T) {
	sel, err := Fragment(`<button>Log in <span>now</span></button>`)
	require.NoError(t, err)
	require.Equal(t, "Log in ", OwnText(sel.Nodes[0]))
}

func TestResolveHref(t *testing.T) {
	base, err := url.Parse("https://www.repeat.gg/mobile/brawl-stars")
	require.NoError(t, err)

	sel, err := Fragment(`<a data-testid="tournament row" href="/tournament/123">x</a>`)
	require.NoError(t, err)
	href, ok := ResolveHref(sel, base)
	require.True(t, ok)
	require.Equal(t, "https://www.repeat.gg/tournament/123", href)

	sel, err = Fragment(`<div><a href="https://other.example/t/9">x</a></div>`)
	require.NoError(t, err)
	href, ok = ResolveHref(sel, base)
	require.True(t, ok)
	require.Equal(t, "https://other.example/t/9", href)

	sel, err = Fragment(`<div>no link</div>`)
	require.NoError(t, err)
	_, ok = ResolveHref(sel, base)
	require.False(t, ok)
}
