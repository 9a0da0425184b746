package repeatgg

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"repeatbot/lib/authsnap"
	"repeatbot/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type PreflightOptions struct {
	// defaults to BaseURL
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// skips the TLS fingerprint transport, for plain http test servers
	DisableBypass bool
	Output        restyutil.InstrumentOutput
}

type PreflightResult struct {
	Status         int
	LoggedOut      bool
	CookiesSent    int
	ExpiredCookies int
}

func newClient(opts PreflightOptions) (*resty.Client, error) {
	baseUrl, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	if !opts.DisableBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname(), Host, Domain))
	client.SetTimeout(opts.Timeout)
	restyutil.InstrumentClient(client, tracer, opts.Output)
	return client, nil
}

// Preflight fetches the site root over plain HTTP with the snapshot's
// cookies to check reachability and whether the session still looks valid
// before a browser is started. The result is advisory: client side
// rendering may hide login state from a plain request.
func Preflight(ctx context.Context, snap authsnap.Snapshot, opts PreflightOptions) (PreflightResult, error) {
	ctx, span := tracer.Start(ctx, "Preflight")
	defer span.End()

	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	client, err := newClient(opts)
	if err != nil {
		return PreflightResult{}, err
	}

	result := PreflightResult{}
	now := time.Now()
	var cookies []*http.Cookie
	for _, c := range snap.ScopedTo(Domain).Cookies {
		if c.Expired(now) {
			result.ExpiredCookies++
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	result.CookiesSent = len(cookies)
	client.SetCookies(cookies)

	res, err := client.R().
		SetContext(ctx).
		Get("/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "preflight request failed")
		return result, err
	}

	result.Status = res.StatusCode()
	result.LoggedOut = HasLoginMarkers(res.String())
	span.SetAttributes(
		attribute.Int("status", result.Status),
		attribute.Bool("logged_out", result.LoggedOut),
		attribute.Int("cookies_sent", result.CookiesSent),
		attribute.Int("cookies_expired", result.ExpiredCookies),
	)
	return result, nil
}
