// Package session persists reusable authenticated portal sessions, one
// record per (user, site). A record is either fresh (younger than the
// freshness window), stale (discarded on read), or absent; logging in
// again is always the fallback, so storage problems degrade to "not
// found" instead of blocking extraction.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	_ "embed"

	"hwscraper-backend/lib/timezone"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// DefaultFreshnessWindow is how long a saved session is trusted without
// relogging. Past it the record is discarded on read regardless of
// cookie content.
const DefaultFreshnessWindow = 24 * time.Hour

type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

type Session struct {
	UserID     string
	Site       string
	Cookies    []Cookie
	LastURL    string
	CapturedAt time.Time
}

// HTTPCookies converts the stored cookies for seeding an http.CookieJar.
func (s Session) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, len(s.Cookies))
	for i, c := range s.Cookies {
		out[i] = &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		}
	}
	return out
}

// FromHTTPCookies builds session cookies out of a cookie jar dump.
func FromHTTPCookies(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		}
	}
	return out
}

type Store struct {
	db     *sql.DB
	window time.Duration
}

type StoreOptions struct {
	// FreshnessWindow overrides DefaultFreshnessWindow when positive.
	FreshnessWindow time.Duration
}

func NewStore(database *sql.DB, opts StoreOptions) Store {
	window := opts.FreshnessWindow
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return Store{db: database, window: window}
}

// Load reads the persisted session for (user, site). A session older
// than the freshness window is deleted and reported as not found.
// Storage errors are logged and reported as not found too: a broken
// session store must never block a fresh login.
func (s Store) Load(ctx context.Context, userID, site string) (Session, bool) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cookies, last_url, captured_at
		FROM portal_session WHERE user_id = ? AND site = ?`,
		userID, site,
	)

	var cookiesJSON, lastURL string
	var capturedAt int64
	err := row.Scan(&cookiesJSON, &lastURL, &capturedAt)
	if err == sql.ErrNoRows {
		return Session{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to read session, forcing relogin",
			"user", userID, "site", site, "err", err)
		return Session{}, false
	}

	captured := time.Unix(capturedAt, 0).In(timezone.Location)
	if timezone.Now().Sub(captured) > s.window {
		s.Invalidate(ctx, userID, site)
		return Session{}, false
	}

	var cookies []Cookie
	if err := json.Unmarshal([]byte(cookiesJSON), &cookies); err != nil {
		slog.WarnContext(ctx, "failed to decode session cookies, forcing relogin",
			"user", userID, "site", site, "err", err)
		s.Invalidate(ctx, userID, site)
		return Session{}, false
	}

	return Session{
		UserID:     userID,
		Site:       site,
		Cookies:    cookies,
		LastURL:    lastURL,
		CapturedAt: captured,
	}, true
}

// Save overwrites the session record for (user, site), last write wins.
func (s Store) Save(ctx context.Context, sess Session) error {
	cookiesJSON, err := json.Marshal(sess.Cookies)
	if err != nil {
		return err
	}

	capturedAt := sess.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = timezone.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO portal_session (user_id, site, cookies, last_url, captured_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, site) DO UPDATE SET
			cookies = excluded.cookies,
			last_url = excluded.last_url,
			captured_at = excluded.captured_at`,
		sess.UserID, sess.Site, string(cookiesJSON), sess.LastURL, capturedAt.Unix(),
	)
	return err
}

// Invalidate deletes the record. Called when credentials change, the
// freshness window lapses or a validity probe fails.
func (s Store) Invalidate(ctx context.Context, userID, site string) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM portal_session WHERE user_id = ? AND site = ?`,
		userID, site,
	)
	if err != nil {
		slog.WarnContext(ctx, "failed to invalidate session",
			"user", userID, "site", site, "err", err)
	}
}
