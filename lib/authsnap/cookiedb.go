package authsnap

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mazen160/go-random"
	_ "modernc.org/sqlite"
)

// CookieDBPath returns the location of the cookie database inside a Chrome
// profile directory (e.g. ".../User Data/Default"). Newer Chrome versions
// keep it under Network/.
func CookieDBPath(profileDir string) (string, error) {
	candidates := []string{
		filepath.Join(profileDir, "Network", "Cookies"),
		filepath.Join(profileDir, "Cookies"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no cookie database in %s: %w", profileDir, os.ErrNotExist)
}

const cookieQuery = `
SELECT host_key, name, value, path, expires_utc, is_secure, is_httponly, samesite
FROM cookies
WHERE host_key LIKE ?`

// ReadChromeCookies reads every cookie whose host contains site from a
// Chrome cookie database. The database is copied first since a running
// browser keeps it locked. Expiry is kept in Chrome's own epoch; see
// Cookie.UnixExpiry. Encrypted values are not decrypted, rows that only
// carry an encrypted value come back with an empty Value.
func ReadChromeCookies(ctx context.Context, dbPath, site string) ([]Cookie, error) {
	ctx, span := tracer.Start(ctx, "ReadChromeCookies")
	defer span.End()

	tmp, err := copyToTemp(dbPath)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, cookieQuery, "%"+site+"%")
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query cookies: %w", err)
	}
	defer rows.Close()

	var out []Cookie
	for rows.Next() {
		var (
			c        Cookie
			expires  int64
			secure   int
			httpOnly int
			sameSite int
		)
		err := rows.Scan(&c.Domain, &c.Name, &c.Value, &c.Path, &expires, &secure, &httpOnly, &sameSite)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable cookie row", "err", err)
			continue
		}
		c.Expiry = float64(expires)
		c.Secure = secure != 0
		c.HTTPOnly = httpOnly != 0
		c.SameSite = ParseSameSite(strconv.Itoa(sameSite))
		if c.SameSite == "" {
			c.SameSite = SameSiteStrict
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func copyToTemp(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	suffix, err := random.String(12)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(os.TempDir(), "repeatbot-cookies-"+suffix+".db")
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(out, in)
	closeErr := out.Close()
	if err != nil {
		os.Remove(dst)
		return "", err
	}
	if closeErr != nil {
		os.Remove(dst)
		return "", closeErr
	}
	return dst, nil
}
