// Package browser is the page rendering collaborator the automation drives.
// Queries are explicit find-or-none lookups returning outer HTML snapshots,
// so callers parse markup themselves and never rely on driver errors to
// learn that an element is absent.
package browser

import (
	"context"
	"errors"
	"time"

	"repeatbot/lib/authsnap"
)

var ErrNotFound = errors.New("element not found")

// Locator addresses the Index'th element matching Selector. When Inner is
// set, the first descendant of that element matching Inner is addressed
// instead.
type Locator struct {
	Selector string
	Index    int
	Inner    string
}

type StorageKind string

const (
	LocalStorage   StorageKind = "localStorage"
	SessionStorage StorageKind = "sessionStorage"
)

// Page is one browsing context. Every method is bounded by the caller's
// context and by the implementation's own per-operation timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	URL(ctx context.Context) (string, error)

	// FindAll returns the outer HTML of every element currently matching
	// selector, in document order. No match is an empty slice, not an error.
	FindAll(ctx context.Context, selector string) ([]string, error)
	// WaitPresent polls until selector matches at least one element. It
	// returns false without error when timeout elapses first, and the
	// context's error when ctx is cancelled.
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// Click returns ErrNotFound when the locator matches nothing.
	Click(ctx context.Context, loc Locator) error

	SetCookie(ctx context.Context, cookie authsnap.Cookie) error
	Cookies(ctx context.Context, urls ...string) ([]authsnap.Cookie, error)
	SetStorage(ctx context.Context, kind StorageKind, items map[string]string) (int, error)
	Storage(ctx context.Context, kind StorageKind) (map[string]string, error)

	Screenshot(ctx context.Context) ([]byte, error)
}

// Tab is a page opened in its own browsing context that must be closed by
// whoever opened it.
type Tab interface {
	Page
	Close() error
}

// Browser owns the process and its primary page.
type Browser interface {
	Page
	NewTab(ctx context.Context, url string) (Tab, error)
	// Pid is 0 when the process is not local.
	Pid() int
	Close() error
}
