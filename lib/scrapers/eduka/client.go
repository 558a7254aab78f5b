// Package eduka scrapes the Eduka Klasė portal. The portal is a
// client-rendered SPA with no stable JSON surface, so both login and
// page fetching go through a headless browser; only the rendered HTML
// is handed to the parsers.
package eduka

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"hwscraper-backend/lib/scrapers/browserlogin"
	"hwscraper-backend/lib/session"
)

var tracer = otel.Tracer("hwscraper.lib.scrapers.eduka")

const (
	Site = "eduka"

	DefaultBaseURL = "https://klase.eduka.lt"

	AuthPath   = "/auth"
	GroupsPath = "/student/my-groups"
)

// Fan-out caps: a runaway account with hundreds of groups must not turn
// one extraction into hundreds of page loads.
const (
	MaxGroups              = 5
	MaxAssignmentsPerGroup = 10
)

// LoginConfig describes the SPA login form. The portal has shipped
// several variants of the form markup, hence the candidate lists.
func LoginConfig(baseURL string) browserlogin.Config {
	return browserlogin.Config{
		LoginURL: baseURL + AuthPath,
		UsernameSelectors: []string{
			"#username",
			"input[name='username']",
			"input[type='email']",
		},
		PasswordSelectors: []string{
			"#password",
			"input[name='password']",
			"input[type='password']",
		},
		// the usual variant labels the button "Prisijungti" without a
		// submit type; when none of these match, browserlogin falls
		// back to Enter on the password field
		SubmitSelectors: []string{
			"button[type='submit']",
			"input[type='submit']",
			"form button",
		},
		FailureMarker: "neteisingi prisijungimo duomenys",
		Markers:       session.DefaultMarkers(),
	}
}

// Client drives a leased browser against one Eduka deployment. The
// browser stays owned by the caller's pool lease; the client only opens
// and closes pages on it.
type Client struct {
	browser *rod.Browser
	base    *url.URL
	cookies []*http.Cookie

	// SettleWait lets the SPA finish rendering after load. Zero means
	// a 1s default.
	SettleWait time.Duration
}

func NewClient(baseURL string, browser *rod.Browser) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{browser: browser, base: base}, nil
}

// Login authenticates through the SPA form and keeps the resulting
// cookies on the client for subsequent fetches.
func (c *Client) Login(ctx context.Context, username, password string) (browserlogin.Result, error) {
	res, err := browserlogin.Login(ctx, c.browser, LoginConfig(c.base.String()), username, password)
	if err != nil {
		return browserlogin.Result{}, err
	}
	c.cookies = res.Cookies
	return res, nil
}

// RestoreSession arms the client with persisted cookies instead of a
// fresh login. Whether they still work only shows up on the next fetch.
func (c *Client) RestoreSession(cookies []*http.Cookie) {
	c.cookies = cookies
}

func (c *Client) SessionCookies() []*http.Cookie {
	return c.cookies
}

// FetchPage renders one portal page and returns the final URL plus the
// rendered HTML. ref may be a path or an absolute URL from a previously
// parsed link.
func (c *Client) FetchPage(ctx context.Context, ref string) (finalURL string, body string, err error) {
	ctx, span := tracer.Start(ctx, "FetchPage")
	defer span.End()
	span.SetAttributes(attribute.String("ref", ref))

	target, err := c.base.Parse(ref)
	if err != nil {
		span.RecordError(err)
		return "", "", err
	}

	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open page")
		return "", "", err
	}
	defer page.Close()
	page = page.Context(ctx)

	if len(c.cookies) > 0 {
		if err := browserlogin.RestoreCookies(page, c.cookies, c.base.Hostname()); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to restore cookies")
			return "", "", err
		}
	}

	if err := page.Navigate(target.String()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return "", "", err
	}
	if err := page.WaitLoad(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page never loaded")
		return "", "", err
	}
	// load fires before the SPA paints its data, give it a beat
	settle := c.SettleWait
	if settle <= 0 {
		settle = time.Second
	}
	time.Sleep(settle)

	info, err := page.Info()
	if err != nil {
		span.RecordError(err)
		return "", "", err
	}
	html, err := page.HTML()
	if err != nil {
		span.RecordError(err)
		return "", "", err
	}
	span.SetAttributes(attribute.String("final_url", info.URL))
	return info.URL, html, nil
}
