// Package formlogin performs scripted HTTP form authentication: a GET
// to seed anti-CSRF/session cookies followed by a credentials POST.
// It is the fast path, sub-second against portals that accept plain
// HTTP clients, and is configured entirely with data so each site
// adapter can declare its own endpoints and failure markers.
package formlogin

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"hwscraper-backend/lib/scrapers/autherr"
	"hwscraper-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("hwscraper.lib.scrapers.formlogin")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Config struct {
	// LoginPageURL is fetched first to establish session cookies.
	LoginPageURL string
	// SubmitURL receives the urlencoded credentials POST.
	SubmitURL string

	UsernameField string
	PasswordField string
	ExtraFields   map[string]string

	// TokenField/TokenSelector optionally lift an anti-CSRF token off
	// the seed page into the POST body. A configured selector that
	// matches nothing means the markup drifted.
	TokenField    string
	TokenSelector string

	// FailureMarker is a body substring the portal renders on rejected
	// credentials. SuppressedMarker, when also present, means the
	// failure element exists but is hidden, i.e. the login actually
	// succeeded (ManoDienynas keeps the error div in the DOM with
	// display: none).
	FailureMarker    string
	SuppressedMarker string
}

// NewClient builds the cookie-bearing resty client every scripted
// session uses: pinned browser user-agent, cloudflare bypass transport,
// same-domain redirects only, fixed timeout.
func NewClient(baseURL string) (*resty.Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsed.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "hwscraper.lib.scrapers.formlogin.http")

	return client, nil
}

// Login runs the seed GET + credentials POST against cfg. HTTP 200
// without the failure marker counts as success; the portal's cookies
// stay in the client's jar for follow-up fetches.
func Login(ctx context.Context, client *resty.Client, cfg Config, username, password string) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	form := map[string]string{
		cfg.UsernameField: username,
		cfg.PasswordField: password,
	}
	for k, v := range cfg.ExtraFields {
		form[k] = v
	}

	res, err := client.R().
		SetContext(ctx).
		Get(cfg.LoginPageURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return fmt.Errorf("seed login page: %w", err)
	}

	if cfg.TokenField != "" {
		token, err := extractToken(res.Body(), cfg.TokenSelector)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to find csrf token")
			return err
		}
		form[cfg.TokenField] = token
	}

	res, err = client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(cfg.SubmitURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return fmt.Errorf("submit login form: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		err := fmt.Errorf("login endpoint returned status %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected login status")
		return err
	}

	body := res.String()
	if cfg.FailureMarker != "" && strings.Contains(body, cfg.FailureMarker) {
		suppressed := cfg.SuppressedMarker != "" && strings.Contains(body, cfg.SuppressedMarker)
		if !suppressed {
			span.SetStatus(codes.Error, autherr.ErrBadCredentials.Error())
			return autherr.ErrBadCredentials
		}
	}

	return nil
}

func extractToken(body []byte, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}
	token := doc.Find(selector).AttrOr("value", "")
	if token == "" {
		return "", fmt.Errorf("%w: token selector %q matched nothing", autherr.ErrFormNotFound, selector)
	}
	return token, nil
}
