// Package authsnap models an exported authentication state (cookies plus
// web storage) for a single site, and the encodings used to move it between
// machines: a base64 JSON bundle that fits a secret-store budget, Chrome's
// on-disk cookie database, and an encrypted vault on the local filesystem.
package authsnap

import (
	"math"
	"strings"
	"time"
)

type SameSite string

const (
	SameSiteNone   SameSite = "None"
	SameSiteLax    SameSite = "Lax"
	SameSiteStrict SameSite = "Strict"
)

// Cookie follows the field names produced by browser drivers when cookies
// are exported, so bundles created by other tools decode unchanged.
type Cookie struct {
	Domain   string   `json:"domain"`
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Path     string   `json:"path,omitempty"`
	Expiry   float64  `json:"expiry,omitempty"`
	Secure   bool     `json:"secure"`
	HTTPOnly bool     `json:"httpOnly"`
	SameSite SameSite `json:"sameSite,omitempty"`
}

type Snapshot struct {
	Cookies        []Cookie          `json:"cookies"`
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
}

const (
	// seconds between 1601-01-01 and 1970-01-01
	windowsEpochOffset = 11644473600
	// anything above this is microseconds since 1601, not unix seconds
	chromeEpochThreshold = 1e15
	// 9999-12-31T23:59:59Z, the largest expiry cookie stores accept
	MaxExpiry = 253402300799
)

// UnixExpiry converts the cookie's expiry to unix seconds. Values written by
// Chrome's cookie database (microseconds since 1601) are detected by
// magnitude. ok is false for session cookies and for expiries that cannot be
// represented, in which case the cookie should be applied without one.
func (c Cookie) UnixExpiry() (seconds float64, ok bool) {
	v := c.Expiry
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v > chromeEpochThreshold {
		v = v/1e6 - windowsEpochOffset
	}
	if v <= 0 || v > MaxExpiry {
		return 0, false
	}
	return v, true
}

// ExpiresAt is UnixExpiry as a time.Time.
func (c Cookie) ExpiresAt() (time.Time, bool) {
	secs, ok := c.UnixExpiry()
	if !ok {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}

func (c Cookie) Expired(now time.Time) bool {
	at, ok := c.ExpiresAt()
	return ok && at.Before(now)
}

// HostOnly reports whether the cookie applies to exactly its domain rather
// than to subdomains as well.
func (c Cookie) HostOnly() bool {
	return !strings.HasPrefix(c.Domain, ".")
}

// MatchesDomain reports whether the cookie's domain is site or one of its
// subdomains. A leading dot on either side is ignored.
func (c Cookie) MatchesDomain(site string) bool {
	host := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
	site = strings.ToLower(strings.TrimPrefix(site, "."))
	if host == "" || site == "" {
		return false
	}
	return host == site || strings.HasSuffix(host, "."+site)
}

// ScopedTo returns a copy of the snapshot that only carries cookies for
// site. Storage entries are origin scoped already and are kept as is.
func (s Snapshot) ScopedTo(site string) Snapshot {
	out := Snapshot{
		LocalStorage:   s.LocalStorage,
		SessionStorage: s.SessionStorage,
	}
	for _, c := range s.Cookies {
		if c.MatchesDomain(site) {
			out.Cookies = append(out.Cookies, c)
		}
	}
	return out
}

func (s Snapshot) Empty() bool {
	return len(s.Cookies) == 0 && len(s.LocalStorage) == 0 && len(s.SessionStorage) == 0
}

// SessionToken builds a snapshot that holds a single session cookie, for
// environments that only have the raw session id available.
func SessionToken(host, name, value string) Snapshot {
	return Snapshot{
		Cookies: []Cookie{{
			Domain:   host,
			Name:     name,
			Value:    value,
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
		}},
	}
}

// ParseSameSite accepts the textual names in any case as well as the
// numeric codes used by Chrome's cookie database.
func ParseSameSite(v string) SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none", "0", "no_restriction":
		return SameSiteNone
	case "lax", "1":
		return SameSiteLax
	case "strict", "2":
		return SameSiteStrict
	}
	return ""
}
