package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"hwscraper-backend/lib/keychain"
	"hwscraper-backend/lib/session"
	"hwscraper-backend/lib/timezone"
)

var tracer = otel.Tracer("hwscraper.services.extraction")

// DefaultProbeCacheTTL is how long a probed-valid session skips
// re-probing. Well under the session freshness window: the cache only
// saves the probe round trip, never extends a session's life.
const DefaultProbeCacheTTL = 15 * time.Minute

type Service struct {
	sessions    session.Store
	credentials CredentialGateway
	adapters    map[string]Adapter

	// group collapses concurrent runs for the same (user, site) into
	// one: the portals rate-limit aggressively and a duplicate run
	// buys nothing.
	group singleflight.Group
	// validated caches (user, site) keys whose persisted session
	// passed a probe recently.
	validated *expirable.LRU[string, time.Time]
}

type ServiceOptions struct {
	Sessions    session.Store
	Credentials CredentialGateway
	Adapters    []Adapter
	// ProbeCacheTTL overrides DefaultProbeCacheTTL when positive.
	ProbeCacheTTL time.Duration
}

func NewService(opts ServiceOptions) *Service {
	ttl := opts.ProbeCacheTTL
	if ttl <= 0 {
		ttl = DefaultProbeCacheTTL
	}
	adapters := make(map[string]Adapter, len(opts.Adapters))
	for _, a := range opts.Adapters {
		adapters[a.Site()] = a
	}
	return &Service{
		sessions:    opts.Sessions,
		credentials: opts.Credentials,
		adapters:    adapters,
		validated:   expirable.NewLRU[string, time.Time](2048, nil, ttl),
	}
}

// Result is the outcome of one successful run. Failed lists the parts
// that broke without sinking the run.
type Result struct {
	Site  string
	Items []Item
	// SessionReused is true when no login happened.
	SessionReused bool
	// Strategy names the login strategy that established the session,
	// empty when SessionReused.
	Strategy string
	Failed   []SubsourceFailure
	RanAt    time.Time
}

// Run extracts everything for one user on one site. Concurrent calls
// for the same (user, site) share a single underlying run and its
// result. Terminal failures come back as *RunError.
func (s *Service) Run(ctx context.Context, userID, site string) (Result, error) {
	key := userID + "\x00" + site
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.run(ctx, userID, site)
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)
	if shared {
		slog.DebugContext(ctx, "joined in-flight extraction run",
			"site", site)
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, userID, site string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("site", site))

	adapter, ok := s.adapters[site]
	if !ok {
		err := fmt.Errorf("no adapter registered for site %q", site)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	creds, found, err := s.credentials.GetCredentials(ctx, userID, site)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "keychain read failed")
		return Result{}, &RunError{Kind: FailureTransport, Err: err}
	}
	// fail before any network traffic: a run without credentials can
	// only ever end in a rejected login
	if !found || creds.Username == "" || creds.Password == "" {
		err := fmt.Errorf("no stored credentials for %s", site)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, &RunError{Kind: FailureCredentialsMissing, Err: err}
	}

	result := Result{Site: site, RanAt: timezone.Now()}

	cookies := s.reusableSession(ctx, adapter, userID, site)
	if cookies != nil {
		result.SessionReused = true
	} else {
		var strategyFailures []SubsourceFailure
		var strategyName string
		var login LoginResult
		login, strategyName, strategyFailures, err = s.login(ctx, adapter, creds)
		result.Failed = append(result.Failed, strategyFailures...)
		if err != nil {
			kind := Classify(err)
			if kind == FailureCredentialsRejected {
				// the stored password is stale, stop advertising it
				// as verified
				if verr := s.credentials.SetVerified(ctx, userID, site, false); verr != nil {
					slog.WarnContext(ctx, "failed to unmark credentials",
						"site", site, "err", verr)
				}
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "all login strategies failed")
			return Result{}, &RunError{Kind: kind, Err: err}
		}
		result.Strategy = strategyName
		cookies = login.Cookies

		s.persistSession(ctx, userID, site, login)
		if verr := s.credentials.SetVerified(ctx, userID, site, true); verr != nil {
			slog.WarnContext(ctx, "failed to mark credentials verified",
				"site", site, "err", verr)
		}
		s.validated.Add(userID+"\x00"+site, timezone.Now())
	}

	collected, err := adapter.Collect(ctx, cookies)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collection failed")
		return Result{}, &RunError{Kind: Classify(err), Err: err}
	}

	result.Items = collected.Items
	result.Failed = append(result.Failed, collected.Failed...)
	span.SetAttributes(
		attribute.Int("items", len(result.Items)),
		attribute.Int("failed_subsources", len(result.Failed)),
		attribute.Bool("session_reused", result.SessionReused),
	)
	return result, nil
}

// reusableSession returns cookies from a fresh, probed-valid persisted
// session, or nil when a login is needed. A recently probed session
// skips the probe round trip.
func (s *Service) reusableSession(ctx context.Context, adapter Adapter, userID, site string) []*http.Cookie {
	sess, found := s.sessions.Load(ctx, userID, site)
	if !found {
		return nil
	}
	cookies := sess.HTTPCookies()

	key := userID + "\x00" + site
	if _, probed := s.validated.Get(key); probed {
		return cookies
	}

	valid, err := adapter.Probe(ctx, cookies)
	if err != nil {
		slog.WarnContext(ctx, "session probe failed, relogging",
			"site", site, "err", err)
		return nil
	}
	if !valid {
		s.sessions.Invalidate(ctx, userID, site)
		return nil
	}
	s.validated.Add(key, timezone.Now())
	return cookies
}

// login walks the adapter's strategies in order. A rejected credential
// is definitive and ends the walk; any other failure is recorded and
// the next strategy gets its turn.
func (s *Service) login(ctx context.Context, adapter Adapter, creds keychain.Credentials) (LoginResult, string, []SubsourceFailure, error) {
	var failures []SubsourceFailure
	var lastErr error

	for _, strategy := range adapter.Strategies() {
		res, err := strategy.Login(ctx, creds.Username, creds.Password)
		if err == nil {
			return res, strategy.Name(), failures, nil
		}

		kind := Classify(err)
		if kind == FailureCredentialsRejected {
			return LoginResult{}, "", failures, err
		}
		failures = append(failures, SubsourceFailure{
			Source: "login:" + strategy.Name(),
			Kind:   kind,
			Detail: err.Error(),
		})
		slog.WarnContext(ctx, "login strategy failed, trying next",
			"site", adapter.Site(), "strategy", strategy.Name(), "err", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("site %s declares no login strategies", adapter.Site())
	}
	return LoginResult{}, "", failures, lastErr
}

func (s *Service) persistSession(ctx context.Context, userID, site string, login LoginResult) {
	err := s.sessions.Save(ctx, session.Session{
		UserID:  userID,
		Site:    site,
		Cookies: session.FromHTTPCookies(login.Cookies),
		LastURL: login.LastURL,
	})
	if err != nil {
		// next run pays for a fresh login, nothing else is lost
		slog.WarnContext(ctx, "failed to persist session",
			"site", site, "err", err)
	}
}

// ForgetSession drops the persisted session and its probe-cache entry
// for (user, site). Call it whenever the stored credentials change: a
// session minted under the old password must not outlive them.
func (s *Service) ForgetSession(ctx context.Context, userID, site string) {
	s.sessions.Invalidate(ctx, userID, site)
	s.validated.Remove(userID + "\x00" + site)
}
