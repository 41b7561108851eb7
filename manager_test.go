package extensionsystem

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelight/extensionsystem/plugin"
	"github.com/forgelight/extensionsystem/settings"
)

func TestManagerHappyPath(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", nil)
	h.descriptor("b", "1.0.0", map[string]any{
		"Dependencies": []any{dependency("a", "1.0.0", "")},
	})
	h.descriptor("c", "1.0.0", map[string]any{
		"Dependencies": []any{dependency("b", "1.0.0", "")},
	})

	m := h.manager()
	require.NoError(t, m.ReadPlugins())

	require.Equal(t, []string{"a", "b", "c"}, specNames(m.LoadQueue()))

	m.LoadPlugins()
	for _, spec := range m.Plugins() {
		require.Equal(t, StateRunning, spec.State(),
			"plugin %s: %s (error: %s)", spec.Name(), spec.State(), spec.ErrorString())
		require.False(t, spec.HasError())
	}

	wantForward := []string{
		"a:initialize", "b:initialize", "c:initialize",
		"a:extensionsInitialized", "b:extensionsInitialized", "c:extensionsInitialized",
		"a:delayedInitialize", "b:delayedInitialize", "c:delayedInitialize",
	}
	require.Equal(t, wantForward, h.log.all())

	m.Shutdown()
	wantShutdown := append(wantForward,
		"c:aboutToShutdown", "b:aboutToShutdown", "a:aboutToShutdown")
	assert.Equal(t, wantShutdown, h.log.all())
	for _, spec := range m.Plugins() {
		assert.Equal(t, StateDeleted, spec.State(), "plugin %s", spec.Name())
	}
	assert.Equal(t, 3, h.unloadCount(), "every loader must be released on deletion")
}

func TestManagerDependencyLoadFailure(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", nil)
	h.descriptor("b", "1.0.0", map[string]any{
		"Dependencies": []any{dependency("a", "1.0.0", "")},
	})
	h.loadErrs["a"] = "X"

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()

	a := m.PluginByName("a")
	require.Equal(t, StateResolved, a.State())
	require.Equal(t, a.FilePath()+": X", a.ErrorString())

	b := m.PluginByName("b")
	require.Equal(t, StateResolved, b.State())
	require.Equal(t,
		"Cannot load plugin because dependency failed to load: a(1.0.0)\nReason: "+a.ErrorString(),
		b.ErrorString())

	// b's Initialize must never run.
	assert.False(t, h.log.contains("b:initialize"))
}

func TestManagerOptionalDependencyMissing(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", map[string]any{
		"Dependencies": []any{dependency("b", "1.0.0", "optional")},
	})

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()

	a := m.PluginByName("a")
	require.Equal(t, StateRunning, a.State(), "error: %s", a.ErrorString())
	assert.Empty(t, a.DependencySpecs())
}

func TestManagerInitializeFailurePropagates(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", nil)
	h.descriptor("b", "1.0.0", map[string]any{
		"Dependencies": []any{dependency("a", "1.0.0", "")},
	})
	h.plugin("a").initErr = errors.New("boom")

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()

	a := m.PluginByName("a")
	require.Equal(t, "Plugin initialization failed: boom", a.ErrorString())
	// Failed en route to Running, so the driver killed it.
	require.Equal(t, StateDeleted, a.State())

	b := m.PluginByName("b")
	require.True(t, b.HasError())
	assert.Contains(t, b.ErrorString(), "Reason: "+a.ErrorString())
	assert.False(t, h.log.contains("b:extensionsInitialized"))
}

func TestManagerAsynchronousShutdown(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", nil)
	h.plugin("a").shutdownFlag = plugin.AsynchronousShutdown

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()
	require.Equal(t, StateRunning, m.PluginByName("a").State())

	// Signal completion shortly after the coordinator starts waiting.
	go func() {
		time.Sleep(20 * time.Millisecond)
		h.plugin("a").EmitAsynchronousShutdownFinished()
	}()

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete after asynchronousShutdownFinished")
	}
	assert.Equal(t, StateDeleted, m.PluginByName("a").State())
}

func TestManagerDisabledExperimentalPlugin(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", map[string]any{"Experimental": true})
	h.descriptor("b", "1.0.0", map[string]any{
		"Dependencies": []any{dependency("a", "1.0.0", "")},
	})

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()

	a := m.PluginByName("a")
	assert.Equal(t, StateRead, a.State())
	assert.False(t, a.HasError(), "disabled plugin must not be in error: %s", a.ErrorString())
	assert.False(t, h.log.contains("a:initialize"))

	b := m.PluginByName("b")
	assert.True(t, b.HasError())
	assert.Contains(t, b.ErrorString(), "dependency failed to load: a")
}

func TestManagerPlatformMismatchSkips(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", map[string]any{"Platform": "Windows.*"})

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()

	a := m.PluginByName("a")
	assert.False(t, a.IsAvailableForHostPlatform())
	assert.Equal(t, StateRead, a.State())
	assert.False(t, a.HasError())
}

func TestManagerPlatformMatchLoads(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", map[string]any{"Platform": "Linux.*"})

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()

	assert.Equal(t, StateRunning, m.PluginByName("a").State())
}

func TestManagerDelayedInitialize(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", nil)
	h.descriptor("b", "1.0.0", nil)
	h.plugin("a").delayedWork = true

	yields := 0
	var events []EventType

	m := h.manager(WithDelayedInitializeYield(func() { yields++ }))
	m.Subscribe(func(event Event) {
		events = append(events, event.Type)
	})

	require.NoError(t, m.ReadPlugins())
	require.False(t, m.IsInitializationDone())
	m.LoadPlugins()

	assert.True(t, m.IsInitializationDone())
	assert.Equal(t, 1, yields, "only the plugin reporting work should trigger a yield")
	assert.True(t, h.log.contains("a:delayedInitialize"))
	assert.True(t, h.log.contains("b:delayedInitialize"))

	require.NotEmpty(t, events)
	assert.Equal(t, EventPluginsChanged, events[0])
	assert.Equal(t, EventInitializationDone, events[len(events)-1])
}

func TestManagerArgumentsReachInitialize(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", map[string]any{
		"Arguments": []any{map[string]any{"Name": "-mode", "Parameter": "value"}},
	})

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	a := m.PluginByName("a")
	a.AddArguments([]string{"-mode", "fast"})
	a.AddArguments([]string{"-v"})
	m.LoadPlugins()

	require.Equal(t, []string{"-mode", "fast", "-v"}, h.plugin("a").gotArgs)
}

func TestManagerSetPluginEnabled(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("exp", "1.0.0", map[string]any{"Experimental": true})
	h.descriptor("base", "1.0.0", map[string]any{"Required": true})

	store := settings.NewMemStore()

	m := h.manager(WithSettings(store))
	require.NoError(t, m.ReadPlugins())
	require.False(t, m.PluginByName("exp").IsEffectivelyEnabled())

	// Opt the experimental plugin in and persist the decision.
	require.NoError(t, m.SetPluginEnabled("exp", true))

	// Required plugins cannot be disabled.
	err := m.SetPluginEnabled("base", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequiredPlugin)

	// Unknown plugins are reported.
	err = m.SetPluginEnabled("ghost", true)
	assert.ErrorIs(t, err, ErrPluginNotFound)

	// A fresh manager over the same store sees the decision.
	m2 := h.manager(WithSettings(store))
	require.NoError(t, m2.ReadPlugins())
	assert.True(t, m2.PluginByName("exp").IsEffectivelyEnabled())
	m2.LoadPlugins()
	assert.Equal(t, StateRunning, m2.PluginByName("exp").State())
}

func TestManagerDisableViaSettings(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", nil)
	h.descriptor("b", "1.0.0", map[string]any{
		"Dependencies": []any{dependency("a", "1.0.0", "")},
	})

	store := settings.NewMemStore()
	store.SetStringList("Plugins/Ignored", []string{"a"})

	m := h.manager(WithSettings(store))
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()

	a := m.PluginByName("a")
	assert.Equal(t, StateRead, a.State())
	assert.False(t, a.HasError())

	b := m.PluginByName("b")
	assert.True(t, b.HasError(), "dependent of a user-disabled plugin must report a failure")
}

func TestManagerSurfacesAllErrors(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("good", "1.0.0", nil)
	h.descriptor("bad", "oops", nil)

	m := h.manager()
	require.NoError(t, m.ReadPlugins())

	var badSpec *PluginSpec
	for _, spec := range m.Plugins() {
		if spec.HasError() {
			badSpec = spec
		}
	}
	require.NotNil(t, badSpec, "invalid descriptors must stay enumerable")
	assert.Contains(t, badSpec.ErrorString(), `has invalid format`)
	assert.Equal(t, StateInvalid, badSpec.State())
}

func TestManagerObjectRegistryDelegation(t *testing.T) {
	h := newTestHarness(t)
	m := h.manager()

	type service struct{ name string }
	obj := &service{name: "svc"}

	require.True(t, m.AddObject(obj))
	require.False(t, m.AddObject(obj), "double add must be rejected")
	require.Equal(t, []any{obj}, m.AllObjects())
	require.True(t, m.RemoveObject(obj))
	require.Empty(t, m.AllObjects())
}

func TestManagerErrorStringFreezesState(t *testing.T) {
	h := newTestHarness(t)
	h.descriptor("a", "1.0.0", nil)
	h.plugin("a").initErr = errors.New("first failure")

	m := h.manager()
	require.NoError(t, m.ReadPlugins())
	m.LoadPlugins()

	a := m.PluginByName("a")
	firstErr := a.ErrorString()
	firstState := a.State()
	require.NotEmpty(t, firstErr)

	// Driving the spec again must not advance it or replace the error.
	m.LoadPlugins()
	assert.Equal(t, firstErr, a.ErrorString())
	assert.Equal(t, firstState, a.State())
}
