package extraction

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hwscraper-backend/lib/browser"
	"hwscraper-backend/lib/dates"
	"hwscraper-backend/lib/scrapers/browserlogin"
	"hwscraper-backend/lib/scrapers/manodienynas"
	"hwscraper-backend/lib/session"
	"hwscraper-backend/lib/timezone"
)

// ManoDienynasOptions configures the manodienynas.lt adapter. A nil
// Browsers pool drops the browser fallback strategy and leaves only the
// scripted login.
type ManoDienynasOptions struct {
	BaseURL  string
	Browsers *browser.Pool
}

type ManoDienynasAdapter struct {
	baseURL string
	pool    *browser.Pool
}

func NewManoDienynas(opts ManoDienynasOptions) *ManoDienynasAdapter {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = manodienynas.DefaultBaseURL
	}
	return &ManoDienynasAdapter{baseURL: baseURL, pool: opts.Browsers}
}

func (a *ManoDienynasAdapter) Site() string {
	return manodienynas.Site
}

func (a *ManoDienynasAdapter) Strategies() []LoginStrategy {
	strategies := []LoginStrategy{mdScriptedStrategy{baseURL: a.baseURL}}
	if a.pool != nil {
		strategies = append(strategies, mdBrowserStrategy{baseURL: a.baseURL, pool: a.pool})
	}
	return strategies
}

// Probe loads the homework page and checks where the portal put us: an
// expired session bounces to the public login page.
func (a *ManoDienynasAdapter) Probe(ctx context.Context, cookies []*http.Cookie) (bool, error) {
	client, err := manodienynas.NewClient(a.baseURL)
	if err != nil {
		return false, err
	}
	client.RestoreSession(cookies)

	finalURL, body, err := client.FetchPage(ctx, manodienynas.HomeworkPath)
	if err != nil {
		return false, err
	}
	snap := session.Snapshot{URL: finalURL, Body: body}
	return session.IsLoggedIn(snap, session.DefaultMarkers()), nil
}

// Collect fetches the homework and exam pages. Each page fails
// independently: a redesigned exams table must not cost the user their
// homework list.
func (a *ManoDienynasAdapter) Collect(ctx context.Context, cookies []*http.Cookie) (CollectResult, error) {
	ctx, span := tracer.Start(ctx, "ManoDienynas.Collect")
	defer span.End()

	client, err := manodienynas.NewClient(a.baseURL)
	if err != nil {
		return CollectResult{}, err
	}
	client.RestoreSession(cookies)

	var result CollectResult
	now := timezone.Now()

	homeworkURL := a.baseURL + manodienynas.HomeworkPath
	if items, err := a.collectHomework(ctx, client, now); err != nil {
		result.Failed = append(result.Failed, SubsourceFailure{
			Source: homeworkURL,
			Kind:   Classify(err),
			Detail: err.Error(),
		})
	} else {
		result.Items = append(result.Items, items...)
	}

	examsURL := a.baseURL + manodienynas.ExamsPath
	if items, err := a.collectExams(ctx, client, now); err != nil {
		result.Failed = append(result.Failed, SubsourceFailure{
			Source: examsURL,
			Kind:   Classify(err),
			Detail: err.Error(),
		})
	} else {
		result.Items = append(result.Items, items...)
	}

	span.SetAttributes(attribute.Int("items", len(result.Items)))
	return result, nil
}

func (a *ManoDienynasAdapter) collectHomework(ctx context.Context, client *manodienynas.Client, now time.Time) ([]Item, error) {
	_, body, err := client.FetchPage(ctx, manodienynas.HomeworkPath)
	if err != nil {
		return nil, err
	}
	homework, err := manodienynas.ParseHomework(ctx, body)
	if err != nil {
		return nil, err
	}

	sourceURL := a.baseURL + manodienynas.HomeworkPath
	items := make([]Item, 0, len(homework))
	for _, hw := range homework {
		items = append(items, Item{
			Site:      manodienynas.Site,
			Kind:      KindHomework,
			Subject:   hw.Subject,
			Title:     hw.Description,
			Details:   hw.Teacher,
			Due:       parseDue(hw.DueDateText, now),
			Completed: hw.Completed,
			SourceURL: sourceURL,
		})
	}
	return items, nil
}

func (a *ManoDienynasAdapter) collectExams(ctx context.Context, client *manodienynas.Client, now time.Time) ([]Item, error) {
	_, body, err := client.FetchPage(ctx, manodienynas.ExamsPath)
	if err != nil {
		return nil, err
	}
	exams, err := manodienynas.ParseExams(ctx, body)
	if err != nil {
		return nil, err
	}

	sourceURL := a.baseURL + manodienynas.ExamsPath
	items := make([]Item, 0, len(exams))
	for _, exam := range exams {
		items = append(items, Item{
			Site:      manodienynas.Site,
			Kind:      KindExam,
			Subject:   exam.Group,
			Title:     exam.Topic,
			Details:   exam.Kind,
			Due:       parseDue(exam.DateText, now),
			SourceURL: sourceURL,
		})
	}
	return items, nil
}

// parseDue turns a portal deadline label into a concrete date. Nil for
// empty labels, explicit no-deadline markers and anything unparseable:
// a wrong deadline is worse than none.
func parseDue(text string, now time.Time) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" || dates.IsNoDeadline(text) {
		return nil
	}
	due, ok := dates.ParseAt(text, now)
	if !ok {
		slog.Debug("unparseable due date kept as no deadline", "text", text)
		return nil
	}
	return &due
}

type mdScriptedStrategy struct {
	baseURL string
}

func (mdScriptedStrategy) Name() string { return "scripted" }

func (s mdScriptedStrategy) Login(ctx context.Context, username, password string) (LoginResult, error) {
	client, err := manodienynas.NewClient(s.baseURL)
	if err != nil {
		return LoginResult{}, err
	}
	if err := client.Login(ctx, username, password); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Cookies: client.SessionCookies(),
		LastURL: s.baseURL + manodienynas.LoginSubmitPath,
	}, nil
}

type mdBrowserStrategy struct {
	baseURL string
	pool    *browser.Pool
}

func (mdBrowserStrategy) Name() string { return "browser" }

func (s mdBrowserStrategy) Login(ctx context.Context, username, password string) (LoginResult, error) {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return LoginResult{}, err
	}

	cfg := manodienynas.BrowserLoginConfig(s.baseURL)
	res, err := browserlogin.Login(ctx, lease.Browser, cfg, username, password)
	if err != nil {
		lease.Discard()
		return LoginResult{}, err
	}
	lease.Release()
	return LoginResult{Cookies: res.Cookies, LastURL: res.LastURL}, nil
}
