package extraction

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwscraper-backend/lib/keychain"
	"hwscraper-backend/lib/scrapers/autherr"
	"hwscraper-backend/lib/session"
	"hwscraper-backend/lib/telemetry"

	_ "modernc.org/sqlite"
)

type fakeGateway struct {
	mu       sync.Mutex
	creds    map[string]keychain.Credentials
	verified map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		creds:    map[string]keychain.Credentials{},
		verified: map[string]bool{},
	}
}

func (g *fakeGateway) set(userID, site string, creds keychain.Credentials) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creds[userID+"/"+site] = creds
}

func (g *fakeGateway) GetCredentials(ctx context.Context, userID, site string) (keychain.Credentials, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.creds[userID+"/"+site]
	return c, ok, nil
}

func (g *fakeGateway) SetVerified(ctx context.Context, userID, site string, verified bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified[userID+"/"+site] = verified
	return nil
}

func (g *fakeGateway) verifiedState(userID, site string) (bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.verified[userID+"/"+site]
	return v, ok
}

type fakeStrategy struct {
	name    string
	err     error
	cookies []*http.Cookie
	lastURL string
	calls   atomic.Int32
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Login(ctx context.Context, username, password string) (LoginResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return LoginResult{}, s.err
	}
	return LoginResult{Cookies: s.cookies, LastURL: s.lastURL}, nil
}

type fakeAdapter struct {
	site       string
	strategies []LoginStrategy
	probeValid bool
	probeErr   error
	probeCalls atomic.Int32

	collect      CollectResult
	collectErr   error
	collectCalls atomic.Int32
	collectDelay time.Duration
}

func (a *fakeAdapter) Site() string                { return a.site }
func (a *fakeAdapter) Strategies() []LoginStrategy { return a.strategies }

func (a *fakeAdapter) Probe(ctx context.Context, cookies []*http.Cookie) (bool, error) {
	a.probeCalls.Add(1)
	return a.probeValid, a.probeErr
}

func (a *fakeAdapter) Collect(ctx context.Context, cookies []*http.Cookie) (CollectResult, error) {
	a.collectCalls.Add(1)
	if a.collectDelay > 0 {
		time.Sleep(a.collectDelay)
	}
	return a.collect, a.collectErr
}

func newTestSessionStore(t *testing.T) session.Store {
	t.Helper()
	sqlite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	_, err = sqlite.Exec(session.Schema)
	require.NoError(t, err)
	return session.NewStore(sqlite, session.StoreOptions{})
}

var sessionCookies = []*http.Cookie{{Name: "sid", Value: "abc123"}}

func newTestService(t *testing.T, gateway *fakeGateway, adapters ...Adapter) *Service {
	t.Helper()
	return NewService(ServiceOptions{
		Sessions:    newTestSessionStore(t),
		Credentials: gateway,
		Adapters:    adapters,
	})
}

func TestRunWithoutCredentials(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:services/extraction")
	defer cleanup()

	strategy := &fakeStrategy{name: "scripted", cookies: sessionCookies}
	adapter := &fakeAdapter{site: "testsite", strategies: []LoginStrategy{strategy}}
	svc := newTestService(t, newFakeGateway(), adapter)

	_, err := svc.Run(context.Background(), "alice", "testsite")

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, FailureCredentialsMissing, runErr.Kind)
	assert.Zero(t, strategy.calls.Load(), "no network activity without credentials")
	assert.Zero(t, adapter.probeCalls.Load())
}

func TestRunEmptyPasswordTreatedAsMissing(t *testing.T) {
	gateway := newFakeGateway()
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice"})

	strategy := &fakeStrategy{name: "scripted", cookies: sessionCookies}
	adapter := &fakeAdapter{site: "testsite", strategies: []LoginStrategy{strategy}}
	svc := newTestService(t, gateway, adapter)

	_, err := svc.Run(context.Background(), "alice", "testsite")

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, FailureCredentialsMissing, runErr.Kind)
	assert.Zero(t, strategy.calls.Load())
}

func TestRunStrategyFallback(t *testing.T) {
	gateway := newFakeGateway()
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice", Password: "pw"})

	broken := &fakeStrategy{name: "scripted", err: autherr.ErrFormNotFound}
	working := &fakeStrategy{name: "browser", cookies: sessionCookies}
	adapter := &fakeAdapter{
		site:       "testsite",
		strategies: []LoginStrategy{broken, working},
		collect:    CollectResult{Items: []Item{{Site: "testsite", Kind: KindHomework, Title: "skaityti"}}},
	}
	svc := newTestService(t, gateway, adapter)

	result, err := svc.Run(context.Background(), "alice", "testsite")
	require.NoError(t, err)

	assert.Equal(t, "browser", result.Strategy)
	assert.False(t, result.SessionReused)
	assert.Len(t, result.Items, 1)

	// the first strategy's failure is reported, not swallowed
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "login:scripted", result.Failed[0].Source)
	assert.Equal(t, FailureFormNotFound, result.Failed[0].Kind)

	verified, ok := gateway.verifiedState("alice", "testsite")
	require.True(t, ok)
	assert.True(t, verified)
}

func TestRunRejectedCredentialsStopTheWalk(t *testing.T) {
	gateway := newFakeGateway()
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice", Password: "wrong"})

	rejecting := &fakeStrategy{name: "scripted", err: autherr.ErrBadCredentials}
	fallback := &fakeStrategy{name: "browser", cookies: sessionCookies}
	adapter := &fakeAdapter{site: "testsite", strategies: []LoginStrategy{rejecting, fallback}}
	svc := newTestService(t, gateway, adapter)

	_, err := svc.Run(context.Background(), "alice", "testsite")

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, FailureCredentialsRejected, runErr.Kind)
	// a rejected password is rejected in every strategy, retrying in a
	// browser would only burn rate limit
	assert.Zero(t, fallback.calls.Load())

	verified, ok := gateway.verifiedState("alice", "testsite")
	require.True(t, ok)
	assert.False(t, verified)
}

func TestRunReusesFreshSession(t *testing.T) {
	gateway := newFakeGateway()
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice", Password: "pw"})

	strategy := &fakeStrategy{name: "scripted", cookies: sessionCookies}
	adapter := &fakeAdapter{
		site:       "testsite",
		strategies: []LoginStrategy{strategy},
		probeValid: true,
		collect:    CollectResult{Items: []Item{{Site: "testsite", Kind: KindExam}}},
	}

	store := newTestSessionStore(t)
	require.NoError(t, store.Save(context.Background(), session.Session{
		UserID:  "alice",
		Site:    "testsite",
		Cookies: session.FromHTTPCookies(sessionCookies),
	}))
	svc := NewService(ServiceOptions{
		Sessions:    store,
		Credentials: gateway,
		Adapters:    []Adapter{adapter},
	})

	result, err := svc.Run(context.Background(), "alice", "testsite")
	require.NoError(t, err)

	assert.True(t, result.SessionReused)
	assert.Empty(t, result.Strategy)
	assert.Zero(t, strategy.calls.Load(), "fresh session means no login")
	assert.Equal(t, int32(1), adapter.probeCalls.Load())

	// second run hits the probe cache
	_, err = svc.Run(context.Background(), "alice", "testsite")
	require.NoError(t, err)
	assert.Equal(t, int32(1), adapter.probeCalls.Load(), "recently probed session skips the probe")
	assert.Zero(t, strategy.calls.Load())
}

func TestRunInvalidSessionFallsBackToLogin(t *testing.T) {
	gateway := newFakeGateway()
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice", Password: "pw"})

	strategy := &fakeStrategy{name: "scripted", cookies: sessionCookies, lastURL: "https://portal/home"}
	adapter := &fakeAdapter{
		site:       "testsite",
		strategies: []LoginStrategy{strategy},
		probeValid: false,
	}

	store := newTestSessionStore(t)
	require.NoError(t, store.Save(context.Background(), session.Session{
		UserID:  "alice",
		Site:    "testsite",
		Cookies: session.FromHTTPCookies(sessionCookies),
	}))
	svc := NewService(ServiceOptions{
		Sessions:    store,
		Credentials: gateway,
		Adapters:    []Adapter{adapter},
	})

	result, err := svc.Run(context.Background(), "alice", "testsite")
	require.NoError(t, err)

	assert.False(t, result.SessionReused)
	assert.Equal(t, int32(1), strategy.calls.Load())
	sess, found := store.Load(context.Background(), "alice", "testsite")
	require.True(t, found, "the new session replaces the invalidated one")
	assert.Equal(t, "https://portal/home", sess.LastURL)
}

func TestRunAfterCredentialChangeLogsInAgain(t *testing.T) {
	gateway := newFakeGateway()
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice", Password: "old"})

	strategy := &fakeStrategy{name: "scripted", cookies: sessionCookies}
	adapter := &fakeAdapter{
		site:       "testsite",
		strategies: []LoginStrategy{strategy},
		probeValid: true,
	}

	store := newTestSessionStore(t)
	require.NoError(t, store.Save(context.Background(), session.Session{
		UserID:  "alice",
		Site:    "testsite",
		Cookies: session.FromHTTPCookies(sessionCookies),
	}))
	svc := NewService(ServiceOptions{
		Sessions:    store,
		Credentials: gateway,
		Adapters:    []Adapter{adapter},
	})

	result, err := svc.Run(context.Background(), "alice", "testsite")
	require.NoError(t, err)
	assert.True(t, result.SessionReused)
	assert.Zero(t, strategy.calls.Load())

	// password rotation: the old session and its validation cache entry
	// must both go, or the next run keeps riding the old password
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice", Password: "new"})
	svc.ForgetSession(context.Background(), "alice", "testsite")

	_, found := store.Load(context.Background(), "alice", "testsite")
	assert.False(t, found, "the persisted session is gone")

	result, err = svc.Run(context.Background(), "alice", "testsite")
	require.NoError(t, err)
	assert.False(t, result.SessionReused)
	assert.Equal(t, int32(1), strategy.calls.Load(), "a fresh login happened")
}

func TestRunConcurrentCallsShareOneRun(t *testing.T) {
	gateway := newFakeGateway()
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice", Password: "pw"})

	strategy := &fakeStrategy{name: "scripted", cookies: sessionCookies}
	adapter := &fakeAdapter{
		site:         "testsite",
		strategies:   []LoginStrategy{strategy},
		collect:      CollectResult{Items: []Item{{Site: "testsite"}}},
		collectDelay: 100 * time.Millisecond,
	}
	svc := newTestService(t, gateway, adapter)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Run(context.Background(), "alice", "testsite")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i].Items, 1)
	}
	assert.Equal(t, int32(1), adapter.collectCalls.Load(), "concurrent runs collapse into one")
	assert.Equal(t, int32(1), strategy.calls.Load())
}

func TestRunUnknownSite(t *testing.T) {
	svc := newTestService(t, newFakeGateway())
	_, err := svc.Run(context.Background(), "alice", "nosuchsite")
	require.Error(t, err)
}

func TestRunSurfacesPartialCollectFailures(t *testing.T) {
	gateway := newFakeGateway()
	gateway.set("alice", "testsite", keychain.Credentials{Username: "alice", Password: "pw"})

	strategy := &fakeStrategy{name: "scripted", cookies: sessionCookies}
	adapter := &fakeAdapter{
		site:       "testsite",
		strategies: []LoginStrategy{strategy},
		collect: CollectResult{
			Items: []Item{{Site: "testsite", Kind: KindHomework}},
			Failed: []SubsourceFailure{{
				Source: "https://portal/exams",
				Kind:   FailureStructure,
				Detail: "target table not found",
			}},
		},
	}
	svc := newTestService(t, gateway, adapter)

	result, err := svc.Run(context.Background(), "alice", "testsite")
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, FailureStructure, result.Failed[0].Kind)
	assert.Len(t, result.Items, 1)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureCredentialsRejected, Classify(autherr.ErrBadCredentials))
	assert.Equal(t, FailureFormNotFound, Classify(autherr.ErrFormNotFound))
	assert.Equal(t, FailureTransport, Classify(errors.New("connection reset")))
}
