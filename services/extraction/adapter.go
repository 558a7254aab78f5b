// Package extraction orchestrates scraping runs against the school
// portals. A run resolves credentials, reuses or establishes a portal
// session, collects every reachable homework and exam entry, and
// reports partial failures instead of dying on the first bad subpage.
package extraction

import (
	"context"
	"net/http"
	"time"

	"hwscraper-backend/lib/keychain"
)

type ItemKind string

const (
	KindHomework ItemKind = "homework"
	KindExam     ItemKind = "exam"
)

// Item is one extracted homework or exam entry, normalized across
// portals.
type Item struct {
	Site    string
	Kind    ItemKind
	Subject string
	Title   string
	// Details carries portal-specific extras (teacher name, task
	// counts) that do not fit the normalized fields.
	Details string
	// Due is nil when the portal gave no deadline or an explicit
	// "unlimited" one.
	Due       *time.Time
	Completed bool
	SourceURL string
}

// SubsourceFailure records one part of a run that failed while the rest
// kept going: a login strategy that missed, a subpage that would not
// parse.
type SubsourceFailure struct {
	// Source identifies the failing part, e.g. "login:scripted" or a
	// page URL.
	Source string
	Kind   FailureKind
	Detail string
}

// CollectResult is everything an adapter pulled out of one
// authenticated visit.
type CollectResult struct {
	Items  []Item
	Failed []SubsourceFailure
}

// LoginResult is what a successful strategy hands back: the session
// cookies plus the URL the portal landed on after login, both written
// into the persisted session record.
type LoginResult struct {
	Cookies []*http.Cookie
	LastURL string
}

// LoginStrategy is one way of establishing a portal session. Adapters
// order theirs cheapest first; the orchestrator walks the list until
// one works or a definitive rejection ends the run.
type LoginStrategy interface {
	Name() string
	Login(ctx context.Context, username, password string) (LoginResult, error)
}

// Adapter is the per-portal driver.
type Adapter interface {
	Site() string
	Strategies() []LoginStrategy
	// Probe cheaply checks whether persisted cookies still open the
	// portal. Probe errors mean "could not tell", not "invalid".
	Probe(ctx context.Context, cookies []*http.Cookie) (bool, error)
	Collect(ctx context.Context, cookies []*http.Cookie) (CollectResult, error)
}

// CredentialGateway is the slice of the keychain the orchestrator
// needs. keychain.Store satisfies it.
type CredentialGateway interface {
	GetCredentials(ctx context.Context, userID, site string) (keychain.Credentials, bool, error)
	SetVerified(ctx context.Context, userID, site string, verified bool) error
}
