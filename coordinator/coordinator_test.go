package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/reglet-dev/finguard/coordinator"
	"github.com/reglet-dev/finguard/danger"
	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/host/hosttest"
	"github.com/reglet-dev/finguard/matchpattern"
	"github.com/reglet-dev/finguard/policy"
	"github.com/reglet-dev/finguard/quarantine"
	"github.com/reglet-dev/finguard/registry"
	"github.com/reglet-dev/finguard/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	evilID = "abcdefghijklmnopabcdefghijklmnop"
	ownID  = "ponmlkjihgfedcbaponmlkjihgfedcba"
)

type fixture struct {
	browser *hosttest.Browser
	store   *statestore.MemoryStore
	cache   *registry.Cache
	engine  *policy.Engine
	coord   *coordinator.Coordinator
}

func newFixture(t *testing.T, exts ...host.ExtensionInfo) *fixture {
	t.Helper()
	f := &fixture{
		browser: hosttest.NewBrowser(exts...),
		store:   statestore.NewMemoryStore(),
	}
	f.cache = registry.New(f.browser)
	require.NoError(t, f.cache.Refresh(context.Background()))

	f.engine = policy.NewEngine(f.browser, f.cache,
		policy.WithStore(f.store),
		policy.WithFinancialSites(matchpattern.NewSet([]string{"*://*.binance.com/*"})),
		policy.WithOwnID(ownID),
		policy.WithFailureHandler(&policy.NopFailureHandler{}),
	)

	classifier, err := danger.NewClassifier([]danger.Signature{{Name: "Evil", ID: evilID}})
	require.NoError(t, err)
	gk := quarantine.NewGatekeeper(f.browser,
		quarantine.WithClassifier(classifier),
		quarantine.WithStore(f.store),
		quarantine.WithNotifier(&quarantine.PopupNotifier{Opener: f.browser, Path: "/popup.html"}),
	)

	f.coord = coordinator.New(f.browser, f.cache, f.engine, coordinator.WithGatekeeper(gk))
	return f
}

func tabUpdated(tabID int, status, url string) host.Event {
	return host.Event{
		Kind:   host.EventTabUpdated,
		TabID:  tabID,
		Status: status,
		Tab:    &host.Tab{ID: tabID, URL: url, Status: status},
	}
}

func TestCoordinator_TabUpdatedSuppressesAndRestores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		host.ExtensionInfo{ID: "A", Enabled: true},
		host.ExtensionInfo{ID: ownID, Enabled: true},
	)

	require.NoError(t, f.coord.Handle(ctx, tabUpdated(1, host.TabStatusLoading, "https://www.binance.com/en/trade/BTC_USDT")))
	assert.Equal(t, []string{"A"}, f.engine.Suppressed())

	require.NoError(t, f.coord.Handle(ctx, tabUpdated(1, host.TabStatusComplete, "https://www.example.org/")))
	assert.Empty(t, f.engine.Suppressed())
	ext, _ := f.browser.Extension("A")
	assert.True(t, ext.Enabled)
}

func TestCoordinator_TabUpdatedIgnoresOtherStatuses(t *testing.T) {
	f := newFixture(t, host.ExtensionInfo{ID: "A", Enabled: true})

	require.NoError(t, f.coord.Handle(context.Background(), tabUpdated(1, "", "https://www.binance.com/")))
	assert.Empty(t, f.browser.ToggleCalls())
}

func TestCoordinator_TabActivatedFetchesTab(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host.ExtensionInfo{ID: "A", Enabled: true})
	f.browser.SetTab(host.Tab{ID: 9, URL: "https://accounts.binance.com/login"})

	require.NoError(t, f.coord.Handle(ctx, host.Event{Kind: host.EventTabActivated, TabID: 9}))
	assert.Equal(t, []string{"A"}, f.engine.Suppressed())

	// An unreadable tab is treated as non-financial.
	require.NoError(t, f.coord.Handle(ctx, host.Event{Kind: host.EventTabActivated, TabID: 404}))
	assert.Empty(t, f.engine.Suppressed())
}

func TestCoordinator_DangerousInstallIsQuarantined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	evil := host.ExtensionInfo{ID: evilID, Name: "Evil", Version: "1.0.0", Enabled: true}
	f.browser.Install(evil)

	require.NoError(t, f.coord.Handle(ctx, host.Event{Kind: host.EventExtensionInstalled, Extension: &evil}))

	ext, _ := f.browser.Extension(evilID)
	assert.False(t, ext.Enabled)
	popups := f.browser.Popups()
	require.Len(t, popups, 1)
	assert.Equal(t, "/popup.html?id="+evilID, popups[0].URL)

	// The snapshot was refreshed after the install.
	_, ok := f.cache.Lookup(evilID)
	assert.True(t, ok)
}

func TestCoordinator_SuppressedExtensionUpdatedIntoDangerStaysDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host.ExtensionInfo{ID: evilID, Name: "Helper", Version: "1.9.0", Enabled: true})

	classifier, err := danger.NewClassifier([]danger.Signature{{Name: "Helper", ID: evilID, Versions: ">=2.0.0"}})
	require.NoError(t, err)
	gk := quarantine.NewGatekeeper(f.browser,
		quarantine.WithClassifier(classifier),
		quarantine.WithStore(f.store),
		quarantine.WithNotifier(&quarantine.PopupNotifier{Opener: f.browser, Path: "/popup.html"}),
	)
	c := coordinator.New(f.browser, f.cache, f.engine, coordinator.WithGatekeeper(gk))

	require.NoError(t, c.Handle(ctx, tabUpdated(1, host.TabStatusComplete, "https://www.binance.com/")))
	require.Equal(t, []string{evilID}, f.engine.Suppressed())

	updated := host.ExtensionInfo{ID: evilID, Name: "Helper", Version: "2.1.0", Enabled: false}
	f.browser.Install(updated)
	require.NoError(t, c.Handle(ctx, host.Event{Kind: host.EventExtensionInstalled, Extension: &updated}))
	assert.Empty(t, f.engine.Suppressed())

	require.NoError(t, c.Handle(ctx, tabUpdated(1, host.TabStatusComplete, "https://www.example.org/")))

	ext, _ := f.browser.Extension(evilID)
	assert.False(t, ext.Enabled)
	pending, err := gk.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{evilID}, pending)
	ids, _, err := f.store.Get(ctx, statestore.KeySuppressed)
	require.NoError(t, err)
	assert.Empty(t, ids)
	for _, call := range f.browser.ToggleCalls() {
		assert.False(t, call.Enabled, "extension was re-enabled")
	}
}

func TestCoordinator_SafeInstallOnlyRefreshes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	good := host.ExtensionInfo{ID: "B", Name: "Good", Enabled: true}
	f.browser.Install(good)
	lists := f.browser.ListCount()

	require.NoError(t, f.coord.Handle(ctx, host.Event{Kind: host.EventExtensionInstalled, Extension: &good}))

	assert.Empty(t, f.browser.ToggleCalls())
	assert.Empty(t, f.browser.Popups())
	assert.Equal(t, lists+1, f.browser.ListCount())
}

func TestCoordinator_LifecycleRefreshFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.browser.ListErr = errors.New("management unavailable")

	err := f.coord.Handle(context.Background(), host.Event{Kind: host.EventExtensionEnabled, Extension: &host.ExtensionInfo{ID: "B"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "management unavailable")
}

func TestCoordinator_StartupRestoresPersistedSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host.ExtensionInfo{ID: "A", Enabled: false})
	require.NoError(t, f.store.Set(ctx, statestore.KeySuppressed, []string{"A", "gone"}))

	err := f.coord.Handle(ctx, host.Event{Kind: host.EventRuntimeStartup})
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrToggleFailed)

	ext, _ := f.browser.Extension("A")
	assert.True(t, ext.Enabled)
	ids, _, _ := f.store.Get(ctx, statestore.KeySuppressed)
	assert.Empty(t, ids)
}

func TestCoordinator_BootAppliesOfflineReleases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host.ExtensionInfo{ID: evilID, Enabled: false})
	require.NoError(t, f.store.Set(ctx, statestore.KeyReleased, []string{evilID}))

	require.NoError(t, f.coord.Boot(ctx))

	ext, _ := f.browser.Extension(evilID)
	assert.True(t, ext.Enabled)
}

func TestCoordinator_RuntimeInstalledRestores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host.ExtensionInfo{ID: "A", Enabled: true})
	require.NoError(t, f.engine.Suppress(ctx))

	require.NoError(t, f.coord.Handle(ctx, host.Event{Kind: host.EventRuntimeInstalled, Reason: "update"}))
	assert.Empty(t, f.engine.Suppressed())
}

func TestCoordinator_QuarantineDecisions(t *testing.T) {
	ctx := context.Background()
	evil := host.ExtensionInfo{ID: evilID, Enabled: true}
	f := newFixture(t, evil)
	require.NoError(t, f.coord.Handle(ctx, host.Event{Kind: host.EventExtensionInstalled, Extension: &evil}))

	require.NoError(t, f.coord.Handle(ctx, host.Event{Kind: host.EventQuarantineRelease, Extension: &host.ExtensionInfo{ID: evilID}}))
	ext, _ := f.browser.Extension(evilID)
	assert.True(t, ext.Enabled)

	err := f.coord.Handle(ctx, host.Event{Kind: host.EventQuarantineConfirm, Extension: &host.ExtensionInfo{ID: evilID}})
	assert.ErrorIs(t, err, quarantine.ErrNotQuarantined)

	assert.Error(t, f.coord.Handle(ctx, host.Event{Kind: host.EventQuarantineConfirm}))
}

func TestCoordinator_UnknownEventIgnored(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.coord.Handle(context.Background(), host.Event{Kind: "bookmarks.onCreated"}))
}

func TestCoordinator_Run(t *testing.T) {
	f := newFixture(t,
		host.ExtensionInfo{ID: "A", Enabled: true},
		host.ExtensionInfo{ID: "B", Enabled: true},
	)

	events := make(chan host.Event, 4)
	events <- tabUpdated(1, host.TabStatusComplete, "https://www.binance.com/")
	events <- tabUpdated(2, host.TabStatusComplete, "https://www.binance.com/")
	events <- host.Event{Kind: "bookmarks.onCreated"}
	close(events)

	require.NoError(t, f.coord.Run(context.Background(), events))

	assert.Len(t, f.engine.Suppressed(), 2)
	for _, id := range []string{"A", "B"} {
		ext, _ := f.browser.Extension(id)
		assert.False(t, ext.Enabled, id)
	}
}

func TestCoordinator_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.coord.Run(ctx, make(chan host.Event))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoordinator_PanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	boom := func(next coordinator.Handler) coordinator.Handler {
		return func(ctx context.Context, evt host.Event) error {
			panic("boom")
		}
	}
	c := coordinator.New(f.browser, f.cache, f.engine, coordinator.WithMiddleware(boom))

	err := c.Handle(context.Background(), host.Event{Kind: host.EventRuntimeInstalled})

	var perr *coordinator.PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, host.EventRuntimeInstalled, perr.Kind)
	assert.Equal(t, "boom", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) coordinator.Middleware {
		return func(next coordinator.Handler) coordinator.Handler {
			return func(ctx context.Context, evt host.Event) error {
				order = append(order, name)
				return next(ctx, evt)
			}
		}
	}
	h := coordinator.Chain(func(ctx context.Context, evt host.Event) error {
		order = append(order, "handler")
		return nil
	}, mw("outer"), mw("inner"))

	require.NoError(t, h(context.Background(), host.Event{}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
