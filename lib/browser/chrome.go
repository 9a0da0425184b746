package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"repeatbot/lib/authsnap"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("repeatbot.lib.browser")

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Options struct {
	// ExecPath overrides chromedp's lookup of the Chrome binary.
	ExecPath   string
	ProfileDir string
	Headless   bool
	UserAgent  string
	Width      int
	Height     int
	// RemoteURL connects to an already running browser's devtools endpoint
	// instead of launching one. ExecPath, ProfileDir and Headless are
	// ignored.
	RemoteURL string
	// OpTimeout bounds each operation whose context carries no deadline.
	OpTimeout    time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Width == 0 || o.Height == 0 {
		o.Width, o.Height = 1920, 1080
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	return o
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserAgent(o.UserAgent),
		chromedp.WindowSize(o.Width, o.Height),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if o.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts,
			chromedp.Flag("headless", false),
			chromedp.Flag("start-maximized", true),
		)
	}
	if o.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(o.ProfileDir))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Chrome is a Browser backed by chromedp.
type Chrome struct {
	page
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// Launch starts (or connects to) a browser and opens its first tab. The
// returned browser lives until Close, independent of ctx.
func Launch(ctx context.Context, opts Options) (*Chrome, error) {
	ctx, span := tracer.Start(ctx, "Launch")
	defer span.End()

	opts = opts.withDefaults()

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts.allocatorOptions()...)
	}
	browserCtx, cancelBrowser := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...), "source", "chromedp")
		}),
	)

	// the first Run allocates the browser, it must not inherit a deadline
	// or the process is killed when the deadline passes
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			cancelBrowser()
			cancelAlloc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to start browser")
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		cancelBrowser()
		cancelAlloc()
		return nil, ctx.Err()
	}

	c := &Chrome{
		page:          page{ctx: browserCtx, opts: opts},
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
	}
	slog.InfoContext(ctx, "browser started", "headless", opts.Headless, "pid", c.Pid(), "profile", opts.ProfileDir)
	return c, nil
}

func (c *Chrome) Pid() int {
	cdpCtx := chromedp.FromContext(c.ctx)
	if cdpCtx == nil || cdpCtx.Browser == nil {
		return 0
	}
	proc := cdpCtx.Browser.Process()
	if proc == nil {
		return 0
	}
	return proc.Pid
}

// NewTab opens url in a new browsing context. Closing the tab leaves the
// browser and its other tabs running.
func (c *Chrome) NewTab(ctx context.Context, url string) (Tab, error) {
	ctx, span := tracer.Start(ctx, "NewTab", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	tabCtx, cancel := chromedp.NewContext(c.ctx)
	t := &chromeTab{page: page{ctx: tabCtx, opts: c.opts}, cancel: cancel}
	// allocate the target before any deadline is attached to it
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		span.RecordError(err)
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := t.Navigate(ctx, url); err != nil {
		t.Close()
		span.RecordError(err)
		return nil, err
	}
	return t, nil
}

func (c *Chrome) Close() error {
	err := chromedp.Cancel(c.ctx)
	c.cancelBrowser()
	c.cancelAlloc()
	return err
}

type chromeTab struct {
	page
	cancel context.CancelFunc
}

func (t *chromeTab) Close() error {
	err := chromedp.Cancel(t.ctx)
	t.cancel()
	return err
}

// page implements Page on top of a chromedp context. Calls derive a short
// lived context from it that carries the caller's deadline and
// cancellation, so that cancelling an operation never closes the target.
type page struct {
	ctx  context.Context
	opts Options
}

func (p page) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(p.opts.OpTimeout)
	}
	runCtx, cancel := context.WithDeadline(p.ctx, deadline)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := p.scoped(ctx)
	defer cancel()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p page) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Reload())
}

func (p page) URL(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func jsString(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		// strings always marshal
		panic(err)
	}
	return string(encoded)
}

const findAllScript = `Array.from(document.querySelectorAll(%s), e => e.outerHTML)`

func (p page) FindAll(ctx context.Context, selector string) ([]string, error) {
	var out []string
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(findAllScript, jsString(selector)), &out))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

const countScript = `document.querySelectorAll(%s).length`

func (p page) WaitPresent(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	expr := fmt.Sprintf(countScript, jsString(selector))
	for {
		var count int
		err := p.run(waitCtx, chromedp.Evaluate(expr, &count))
		if err == nil && count > 0 {
			return true, nil
		}
		if err != nil && waitCtx.Err() == nil {
			// the document may be mid navigation, keep polling
			slog.Debug("poll failed", "selector", selector, "err", err)
		}

		select {
		case <-waitCtx.Done():
			// only the timeout means absent, a cancelled caller is an error
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return false, nil
		case <-ticker.C:
		}
	}
}

const clickScript = `(() => {
	const els = document.querySelectorAll(%s);
	if (%d >= els.length) return false;
	let el = els[%d];
	const inner = %s;
	if (inner !== "") el = el.querySelector(inner);
	if (!el) return false;
	el.scrollIntoView({block: "center"});
	el.click();
	return true;
})()`

func (p page) Click(ctx context.Context, loc Locator) error {
	var clicked bool
	expr := fmt.Sprintf(clickScript, jsString(loc.Selector), loc.Index, loc.Index, jsString(loc.Inner))
	if err := p.run(ctx, chromedp.Evaluate(expr, &clicked)); err != nil {
		return fmt.Errorf("click %s[%d]: %w", loc.Selector, loc.Index, err)
	}
	if !clicked {
		return fmt.Errorf("click %s[%d] %s: %w", loc.Selector, loc.Index, loc.Inner, ErrNotFound)
	}
	return nil
}

func sameSiteParam(s authsnap.SameSite) (network.CookieSameSite, bool) {
	switch s {
	case authsnap.SameSiteNone:
		return network.CookieSameSiteNone, true
	case authsnap.SameSiteLax:
		return network.CookieSameSiteLax, true
	case authsnap.SameSiteStrict:
		return network.CookieSameSiteStrict, true
	}
	return "", false
}

// SetCookie applies the cookie with its expiry normalized to unix time.
// Expiries that cannot be represented are left off and the cookie becomes a
// session cookie.
func (p page) SetCookie(ctx context.Context, c authsnap.Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cookieParams(c).Do(ctx)
	}))
}

// cookieParams scopes a host-only cookie by URL so Chrome does not widen it
// to a domain cookie that subdomains would also receive.
func cookieParams(c authsnap.Cookie) *network.SetCookieParams {
	path := c.Path
	if path == "" {
		path = "/"
	}
	params := network.SetCookie(c.Name, c.Value).
		WithSecure(c.Secure).
		WithHTTPOnly(c.HTTPOnly).
		WithPath(path)
	if c.HostOnly() {
		scheme := "http://"
		if c.Secure {
			scheme = "https://"
		}
		params = params.WithURL(scheme + c.Domain + path)
	} else {
		params = params.WithDomain(c.Domain)
	}
	if sameSite, ok := sameSiteParam(c.SameSite); ok {
		// browsers reject SameSite=None without Secure
		if sameSite != network.CookieSameSiteNone || c.Secure {
			params = params.WithSameSite(sameSite)
		}
	}
	if at, ok := c.ExpiresAt(); ok {
		expires := cdp.TimeSinceEpoch(at)
		params = params.WithExpires(&expires)
	}
	return params
}

func (p page) Cookies(ctx context.Context, urls ...string) ([]authsnap.Cookie, error) {
	var raw []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := network.GetCookies()
		if len(urls) > 0 {
			params = params.WithURLs(urls)
		}
		var err error
		raw, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}

	out := make([]authsnap.Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := authsnap.Cookie{
			Domain:   c.Domain,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: authsnap.ParseSameSite(string(c.SameSite)),
		}
		if !c.Session && c.Expires > 0 {
			cookie.Expiry = c.Expires
		}
		out = append(out, cookie)
	}
	return out, nil
}

const setStorageScript = `(() => {
	const items = %s;
	for (const [k, v] of Object.entries(items)) {
		window[%s].setItem(k, v);
	}
	return Object.keys(items).length;
})()`

func (p page) SetStorage(ctx context.Context, kind StorageKind, items map[string]string) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return 0, err
	}
	var count int
	expr := fmt.Sprintf(setStorageScript, encoded, jsString(string(kind)))
	if err := p.run(ctx, chromedp.Evaluate(expr, &count)); err != nil {
		return 0, fmt.Errorf("set %s: %w", kind, err)
	}
	return count, nil
}

const readStorageScript = `(() => {
	const store = window[%s];
	const items = {};
	for (let i = 0; i < store.length; i++) {
		const key = store.key(i);
		items[key] = store.getItem(key);
	}
	return items;
})()`

func (p page) Storage(ctx context.Context, kind StorageKind) (map[string]string, error) {
	out := map[string]string{}
	expr := fmt.Sprintf(readStorageScript, jsString(string(kind)))
	if err := p.run(ctx, chromedp.Evaluate(expr, &out)); err != nil {
		return nil, fmt.Errorf("read %s: %w", kind, err)
	}
	return out, nil
}

func (p page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}
