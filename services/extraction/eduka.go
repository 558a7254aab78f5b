package extraction

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hwscraper-backend/lib/browser"
	"hwscraper-backend/lib/scrapers/eduka"
	"hwscraper-backend/lib/session"
	"hwscraper-backend/lib/timezone"
)

// EdukaOptions configures the Eduka Klasė adapter. The pool is
// mandatory: the portal is an SPA and every interaction with it needs a
// rendering browser.
type EdukaOptions struct {
	BaseURL  string
	Browsers *browser.Pool
}

type EdukaAdapter struct {
	baseURL string
	pool    *browser.Pool
}

func NewEduka(opts EdukaOptions) *EdukaAdapter {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = eduka.DefaultBaseURL
	}
	return &EdukaAdapter{baseURL: baseURL, pool: opts.Browsers}
}

func (a *EdukaAdapter) Site() string {
	return eduka.Site
}

func (a *EdukaAdapter) Strategies() []LoginStrategy {
	return []LoginStrategy{edukaBrowserStrategy{baseURL: a.baseURL, pool: a.pool}}
}

// Probe renders the my-groups page with the persisted cookies. The SPA
// redirects unauthenticated visitors back to /auth.
func (a *EdukaAdapter) Probe(ctx context.Context, cookies []*http.Cookie) (bool, error) {
	lease, err := a.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer lease.Release()

	client, err := eduka.NewClient(a.baseURL, lease.Browser)
	if err != nil {
		return false, err
	}
	client.RestoreSession(cookies)

	finalURL, body, err := client.FetchPage(ctx, eduka.GroupsPath)
	if err != nil {
		return false, err
	}
	snap := session.Snapshot{URL: finalURL, Body: body}
	return session.IsLoggedIn(snap, session.DefaultMarkers()), nil
}

// Collect walks the study groups and their assignment listings on one
// leased browser. A group whose listing breaks is recorded and skipped,
// the remaining groups still get scraped.
func (a *EdukaAdapter) Collect(ctx context.Context, cookies []*http.Cookie) (CollectResult, error) {
	ctx, span := tracer.Start(ctx, "Eduka.Collect")
	defer span.End()

	lease, err := a.pool.Acquire(ctx)
	if err != nil {
		return CollectResult{}, err
	}
	defer lease.Release()

	client, err := eduka.NewClient(a.baseURL, lease.Browser)
	if err != nil {
		return CollectResult{}, err
	}
	client.RestoreSession(cookies)

	_, groupsHTML, err := client.FetchPage(ctx, eduka.GroupsPath)
	if err != nil {
		return CollectResult{}, err
	}
	groups, err := eduka.ParseGroups(ctx, groupsHTML)
	if err != nil {
		return CollectResult{}, err
	}
	span.SetAttributes(attribute.Int("groups", len(groups)))

	var result CollectResult
	now := timezone.Now()
	for _, group := range groups {
		items, err := a.collectGroup(ctx, client, group, now)
		if err != nil {
			result.Failed = append(result.Failed, SubsourceFailure{
				Source: group.URL,
				Kind:   Classify(err),
				Detail: err.Error(),
			})
			continue
		}
		result.Items = append(result.Items, items...)
	}

	span.SetAttributes(attribute.Int("items", len(result.Items)))
	return result, nil
}

func (a *EdukaAdapter) collectGroup(ctx context.Context, client *eduka.Client, group eduka.Group, now time.Time) ([]Item, error) {
	finalURL, html, err := client.FetchPage(ctx, group.URL)
	if err != nil {
		return nil, err
	}
	assignments, err := eduka.ParseAssignments(ctx, html)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(assignments))
	for _, assignment := range assignments {
		items = append(items, Item{
			Site:      eduka.Site,
			Kind:      KindHomework,
			Subject:   group.Subject,
			Title:     assignment.Title,
			Details:   group.Name,
			Due:       parseDue(assignment.DeadlineText, now),
			SourceURL: finalURL,
		})
	}
	return items, nil
}

type edukaBrowserStrategy struct {
	baseURL string
	pool    *browser.Pool
}

func (edukaBrowserStrategy) Name() string { return "browser" }

func (s edukaBrowserStrategy) Login(ctx context.Context, username, password string) (LoginResult, error) {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return LoginResult{}, err
	}

	client, err := eduka.NewClient(s.baseURL, lease.Browser)
	if err != nil {
		lease.Release()
		return LoginResult{}, err
	}
	res, err := client.Login(ctx, username, password)
	if err != nil {
		lease.Discard()
		return LoginResult{}, err
	}
	lease.Release()
	return LoginResult{Cookies: res.Cookies, LastURL: res.LastURL}, nil
}
