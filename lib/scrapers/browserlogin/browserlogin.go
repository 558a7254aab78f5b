// Package browserlogin authenticates through a real headless browser.
// It is the slow path, several seconds per attempt, reserved for
// portals that render their login form client-side or reject unscripted
// HTTP clients. Element lookup walks ordered selector-candidate lists
// because the same portal ships different markup across deployments.
package browserlogin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hwscraper-backend/lib/session"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"hwscraper-backend/lib/scrapers/autherr"
)

var tracer = otel.Tracer("hwscraper.lib.scrapers.browserlogin")

// ErrNotLoggedIn means the form was submitted but the page never
// reached an authenticated state. Without an explicit failure marker
// this is indistinguishable from rejected credentials, so callers treat
// it as such.
var ErrNotLoggedIn = errors.New("page did not reach an authenticated state after login")

type Config struct {
	LoginURL string

	UsernameSelectors []string
	PasswordSelectors []string
	// SubmitSelectors may all miss, in which case Enter is pressed on
	// the password field.
	SubmitSelectors []string

	// LocatorTimeout bounds the wait per selector candidate. The SPA
	// needs time to render the form, so the default is generous (10s).
	LocatorTimeout time.Duration
	// SettleWait is how long to let the page process the submission
	// before judging the outcome. Default 5s.
	SettleWait time.Duration

	// FailureMarker is a rendered-body substring meaning rejected
	// credentials.
	FailureMarker string
	// Markers decide post-submission success, same heuristic seam as
	// session validity probing.
	Markers session.Markers
}

type Result struct {
	Cookies []*http.Cookie
	LastURL string
	// HTML of the post-login page, reusable as a validity snapshot.
	HTML string
}

// Login drives the full flow on a pooled browser: navigate, locate the
// credential inputs, fill, submit, settle, judge. The page is closed on
// every exit path; the browser itself stays with the caller's lease.
func Login(ctx context.Context, browser *rod.Browser, cfg Config, username, password string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()
	span.SetAttributes(attribute.String("url", cfg.LoginURL))

	locatorTimeout := cfg.LocatorTimeout
	if locatorTimeout <= 0 {
		locatorTimeout = 10 * time.Second
	}
	settleWait := cfg.SettleWait
	if settleWait <= 0 {
		settleWait = 5 * time.Second
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open page")
		return Result{}, err
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Navigate(cfg.LoginURL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to navigate to login page")
		return Result{}, err
	}
	if err := page.WaitLoad(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login page never loaded")
		return Result{}, err
	}

	usernameEl, err := resolveElement(page, cfg.UsernameSelectors, locatorTimeout)
	if err != nil {
		span.SetStatus(codes.Error, "username input not found")
		return Result{}, fmt.Errorf("%w: username input", autherr.ErrFormNotFound)
	}
	passwordEl, err := resolveElement(page, cfg.PasswordSelectors, locatorTimeout)
	if err != nil {
		span.SetStatus(codes.Error, "password input not found")
		return Result{}, fmt.Errorf("%w: password input", autherr.ErrFormNotFound)
	}

	if err := usernameEl.Input(username); err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	if err := passwordEl.Input(password); err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	// a missing submit button is common across portal versions, Enter
	// on the password field is the reliable fallback
	submitEl, err := resolveElement(page, cfg.SubmitSelectors, time.Second*2)
	if err == nil {
		err = submitEl.Click(proto.InputMouseButtonLeft, 1)
	} else {
		err = passwordEl.Type(input.Enter)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return Result{}, err
	}

	// the submission is mid-flight here, finish the bounded settle
	// even when the caller cancels so the portal is not left with a
	// half-submitted form
	time.Sleep(settleWait)

	snap, err := snapshot(page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to snapshot post-login page")
		return Result{}, err
	}
	span.SetAttributes(attribute.String("post_login_url", snap.URL))

	if cfg.FailureMarker != "" && containsMarker(snap.Body, cfg.FailureMarker) {
		span.SetStatus(codes.Error, autherr.ErrBadCredentials.Error())
		return Result{}, autherr.ErrBadCredentials
	}
	if !session.IsLoggedIn(snap, cfg.Markers) {
		span.SetStatus(codes.Error, ErrNotLoggedIn.Error())
		return Result{}, ErrNotLoggedIn
	}

	cookies, err := DumpCookies(page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read session cookies")
		return Result{}, err
	}

	return Result{
		Cookies: cookies,
		LastURL: snap.URL,
		HTML:    snap.Body,
	}, nil
}

func resolveElement(page *rod.Page, selectors []string, perCandidate time.Duration) (*rod.Element, error) {
	for _, selector := range selectors {
		el, err := page.Timeout(perCandidate).Element(selector)
		if err != nil {
			continue
		}
		return el.CancelTimeout(), nil
	}
	return nil, fmt.Errorf("no selector candidate matched out of %d", len(selectors))
}

func snapshot(page *rod.Page) (session.Snapshot, error) {
	info, err := page.Info()
	if err != nil {
		return session.Snapshot{}, err
	}
	html, err := page.HTML()
	if err != nil {
		return session.Snapshot{}, err
	}
	return session.Snapshot{URL: info.URL, Body: html}, nil
}

func containsMarker(body, marker string) bool {
	return strings.Contains(strings.ToLower(body), strings.ToLower(marker))
}

// DumpCookies reads the page's cookies into the form the session store
// persists.
func DumpCookies(page *rod.Page) ([]*http.Cookie, error) {
	cookies, err := page.Cookies(nil)
	if err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		}
	}
	return out, nil
}

// RestoreCookies seeds a page with a persisted session before
// navigation.
func RestoreCookies(page *rod.Page, cookies []*http.Cookie, defaultDomain string) error {
	params := make([]*proto.NetworkCookieParam, len(cookies))
	for i, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = defaultDomain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		params[i] = &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: domain,
			Path:   path,
		}
	}
	return page.SetCookies(params)
}
