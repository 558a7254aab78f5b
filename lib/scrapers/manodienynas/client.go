// Package manodienynas scrapes homework and exam schedules from
// manodienynas.lt. The portal accepts plain HTTP clients, so the whole
// flow is scripted: ajax form login, then two server-rendered table
// pages.
package manodienynas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"hwscraper-backend/lib/scrapers/browserlogin"
	"hwscraper-backend/lib/scrapers/formlogin"
	"hwscraper-backend/lib/session"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("hwscraper.lib.scrapers.manodienynas")

const (
	Site = "manodienynas"

	DefaultBaseURL = "https://www.manodienynas.lt"

	LoginPagePath   = "/1/lt/public/public/login"
	LoginSubmitPath = "/1/lt/ajax/user/login"
	HomeworkPath    = "/1/lt/page/classhomework/home_work"
	ExamsPath       = "/1/lt/page/control_work/dates_pupil"
)

// LoginConfig declares how the portal's form login behaves. The portal
// keeps its validation-errors div in the DOM even on success, hidden
// with an inline style, hence the suppressed marker.
func LoginConfig() formlogin.Config {
	return formlogin.Config{
		LoginPageURL:     LoginPagePath,
		SubmitURL:        LoginSubmitPath,
		UsernameField:    "username",
		PasswordField:    "password",
		FailureMarker:    `class="login-validation-errors"`,
		SuppressedMarker: `style="display: none;"`,
	}
}

// BrowserLoginConfig is the fallback for when the ajax endpoint starts
// rejecting scripted clients: drive the public login page in a real
// browser instead.
func BrowserLoginConfig(baseURL string) browserlogin.Config {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return browserlogin.Config{
		LoginURL: baseURL + LoginPagePath,
		UsernameSelectors: []string{
			"input[name='username']",
			"#username",
		},
		PasswordSelectors: []string{
			"input[name='password']",
			"#password",
		},
		SubmitSelectors: []string{
			"button[type='submit']",
			"input[type='submit']",
		},
		FailureMarker: "neteisingi prisijungimo duomenys",
		Markers:       session.DefaultMarkers(),
	}
}

type Client struct {
	Http *resty.Client
	base *url.URL
}

func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	httpClient, err := formlogin.NewClient(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{Http: httpClient, base: parsed}, nil
}

func (c *Client) BaseURL() *url.URL {
	return c.base
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	return formlogin.Login(ctx, c.Http, LoginConfig(), username, password)
}

// RestoreSession seeds the cookie jar with a persisted session instead
// of logging in.
func (c *Client) RestoreSession(cookies []*http.Cookie) {
	c.Http.GetClient().Jar.SetCookies(c.base, cookies)
}

// SessionCookies dumps the current jar for persistence.
func (c *Client) SessionCookies() []*http.Cookie {
	return c.Http.GetClient().Jar.Cookies(c.base)
}

// FetchPage GETs a portal path and returns the final URL (after
// redirects) together with the body. The final URL matters: the portal
// redirects logged-out sessions back to its login page.
func (c *Client) FetchPage(ctx context.Context, path string) (finalURL, body string, err error) {
	ctx, span := tracer.Start(ctx, "FetchPage")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	res, err := c.Http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return "", "", err
	}
	if res.StatusCode() != http.StatusOK {
		err := fmt.Errorf("fetch %s: status %d", path, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return "", "", err
	}

	finalURL = res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}
	return finalURL, res.String(), nil
}
