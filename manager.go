package extensionsystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/forgelight/extensionsystem/hostinfo"
	"github.com/forgelight/extensionsystem/lualoader"
	"github.com/forgelight/extensionsystem/plugin"
	"github.com/forgelight/extensionsystem/settings"
)

// delayedInitializeInterval is how long the pump yields between entries when
// the previous plugin reported substantive work.
const delayedInitializeInterval = 20 * time.Millisecond

// Settings keys for user plugin enablement.
const (
	settingsKeyIgnoredPlugins      = "Plugins/Ignored"
	settingsKeyForceEnabledPlugins = "Plugins/ForceEnabled"
)

// PluginManager owns all PluginSpecs of a host and drives them through the
// lifecycle: descriptor discovery, dependency resolution, the three startup
// walks, delayed initialization, and coordinated shutdown.
//
// A manager is not a singleton; tests and embedders can run several
// independent instances. ReadPlugins, LoadPlugins, and Shutdown must be
// called in that order from a single goroutine. The object registry is the
// only part safe for concurrent use.
type PluginManager struct {
	id     string
	logger *slog.Logger
	tracer trace.Tracer

	transitions metric.Int64Counter

	iid           string
	pluginPaths   []string
	settings      settings.Store
	loaderFactory plugin.LoaderFactory
	platformName  string
	yield         func()

	registry *ObjectRegistry
	notifier notifier

	specs []*PluginSpec

	asynchronousPlugins    map[*PluginSpec]struct{}
	delayedInitializeQueue []*PluginSpec
	initializationDone     bool
}

// New creates a plugin manager.
//
// Example:
//
//	manager := extensionsystem.New(
//	    extensionsystem.WithIID("org.forgelight.plugin"),
//	    extensionsystem.WithPluginPaths("/usr/lib/forgelight/plugins"),
//	    extensionsystem.WithSettings(store),
//	)
func New(opts ...Option) *PluginManager {
	cfg := &managerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if cfg.tracer == nil {
		cfg.tracer = noop.NewTracerProvider().Tracer("")
	}
	if cfg.settings == nil {
		cfg.settings = settings.NewMemStore()
	}
	if cfg.loaderFactory == nil {
		cfg.loaderFactory = lualoader.New
	}
	if cfg.platformName == "" {
		cfg.platformName = hostinfo.PlatformName()
	}
	if cfg.yield == nil {
		cfg.yield = func() { time.Sleep(delayedInitializeInterval) }
	}

	id := uuid.New().String()
	m := &PluginManager{
		id:                  id,
		logger:              cfg.logger.With(slog.String("manager_id", id)),
		tracer:              cfg.tracer,
		iid:                 cfg.iid,
		pluginPaths:         cfg.pluginPaths,
		settings:            cfg.settings,
		loaderFactory:       cfg.loaderFactory,
		platformName:        cfg.platformName,
		yield:               cfg.yield,
		registry:            NewObjectRegistry(),
		asynchronousPlugins: make(map[*PluginSpec]struct{}),
	}

	if cfg.meter != nil {
		counter, err := cfg.meter.Int64Counter("extensionsystem.plugin.transitions",
			metric.WithDescription("Number of successful plugin lifecycle transitions"))
		if err != nil {
			m.logger.Warn("failed to create transition counter", errAttr(err.Error()))
		} else {
			m.transitions = counter
		}
	}

	// Forward registry notifications to manager-level subscribers.
	m.registry.Subscribe(func(event Event) {
		m.notifier.emit(event)
	})

	return m
}

// PluginIID returns the interface identifier descriptors must carry.
func (m *PluginManager) PluginIID() string { return m.iid }

// PlatformName returns the host platform string plugin platform patterns are
// matched against.
func (m *PluginManager) PlatformName() string { return m.platformName }

// Registry returns the shared object registry.
func (m *PluginManager) Registry() *ObjectRegistry { return m.registry }

// AddObject adds obj to the object pool. See ObjectRegistry.AddObject.
func (m *PluginManager) AddObject(obj any) bool { return m.registry.AddObject(obj) }

// RemoveObject removes obj from the object pool. See
// ObjectRegistry.RemoveObject.
func (m *PluginManager) RemoveObject(obj any) bool { return m.registry.RemoveObject(obj) }

// AllObjects returns a snapshot of the object pool.
func (m *PluginManager) AllObjects() []any { return m.registry.AllObjects() }

// ListLock exposes the registry lock for atomic iterate-and-filter.
func (m *PluginManager) ListLock() *sync.RWMutex { return m.registry.ListLock() }

// Subscribe registers a handler for manager and registry events. Returns an
// unsubscribe function.
func (m *PluginManager) Subscribe(handler Handler) func() {
	return m.notifier.subscribe(handler)
}

// Plugins returns all known specs in discovery order, including specs in
// error; every non-empty error string is surfaced here.
func (m *PluginManager) Plugins() []*PluginSpec {
	specs := make([]*PluginSpec, len(m.specs))
	copy(specs, m.specs)
	return specs
}

// PluginByName returns the spec with the given name, or nil.
func (m *PluginManager) PluginByName(name string) *PluginSpec {
	for _, spec := range m.specs {
		if spec.name == name {
			return spec
		}
	}
	return nil
}

// IsInitializationDone reports whether the delayed-initialize queue has
// drained.
func (m *PluginManager) IsInitializationDone() bool { return m.initializationDone }

// ReadPlugins discovers descriptor files (*.json) in the configured plugin
// paths, reads and validates them, applies user enablement from settings, and
// resolves the dependency graph. Descriptors whose IID does not match are
// skipped silently; descriptors that fail validation are kept, carrying their
// error, so the host can surface them.
func (m *PluginManager) ReadPlugins() error {
	for _, dir := range m.pluginPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return &Error{Op: "PluginManager.ReadPlugins", Kind: KindMetadata, Err: err}
		}

		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			spec := &PluginSpec{}
			if err := spec.read(path, m.iid, m.loaderFactory, m.platformName); err != nil {
				if errors.Is(err, ErrNotAPlugin) {
					continue
				}
				m.logger.Warn("invalid plugin descriptor",
					slog.String("path", path),
					errAttr(spec.errorString))
			} else {
				m.logger.Debug("plugin descriptor read",
					m.pluginAttr(spec),
					slog.String("version", spec.version))
			}
			m.specs = append(m.specs, spec)
		}
	}

	m.readSettings()
	m.resolvePlugins()
	return nil
}

// readSettings applies the persisted user enablement lists to the specs.
// Force-enabled entries opt experimental and disabled-by-default plugins in;
// ignored entries opt plugins out, except required plugins, which the user
// may not disable.
func (m *PluginManager) readSettings() {
	forceEnabled := m.settings.StringList(settingsKeyForceEnabledPlugins)
	ignored := m.settings.StringList(settingsKeyIgnoredPlugins)

	for _, spec := range m.specs {
		if containsString(forceEnabled, spec.name) {
			spec.enabledBySettings = true
		}
		if containsString(ignored, spec.name) && !spec.required {
			spec.enabledBySettings = false
		}
	}
}

// writeSettings persists the current enablement decisions as deltas from the
// descriptor defaults.
func (m *PluginManager) writeSettings() error {
	var forceEnabled, ignored []string
	for _, spec := range m.specs {
		if !spec.enabledByDefault && spec.enabledBySettings {
			forceEnabled = append(forceEnabled, spec.name)
		}
		if spec.enabledByDefault && !spec.enabledBySettings {
			ignored = append(ignored, spec.name)
		}
	}

	settings.SetStringListWithDefault(m.settings, settingsKeyForceEnabledPlugins, forceEnabled, nil)
	settings.SetStringListWithDefault(m.settings, settingsKeyIgnoredPlugins, ignored, nil)
	return m.settings.Save()
}

// SetPluginEnabled records a user decision to enable or disable a plugin and
// persists it. Required plugins cannot be disabled. The decision takes effect
// on the next startup; running plugins are not unloaded.
func (m *PluginManager) SetPluginEnabled(name string, enabled bool) error {
	spec := m.PluginByName(name)
	if spec == nil {
		return &Error{Op: "PluginManager.SetPluginEnabled", Kind: KindRuntime,
			Err: fmt.Errorf("%w: %s", ErrPluginNotFound, name)}
	}
	if spec.required && !enabled {
		return &Error{Op: "PluginManager.SetPluginEnabled", Kind: KindRuntime,
			Err: fmt.Errorf("%w: %s", ErrRequiredPlugin, name)}
	}
	spec.enabledBySettings = enabled
	return m.writeSettings()
}

// LoadPlugins drives every resolved spec through Loaded, Initialized, and
// Running in load-queue order, then drains the delayed-initialize queue.
// Failures never abort the startup: a failed plugin and its transitive
// dependents record errors and are skipped, everything else proceeds.
func (m *PluginManager) LoadPlugins() {
	ctx, span := m.tracer.Start(context.Background(), "PluginManager.LoadPlugins")
	defer span.End()

	queue := m.LoadQueue()

	for _, spec := range queue {
		m.loadPlugin(ctx, spec, StateLoaded)
	}
	for _, spec := range queue {
		m.loadPlugin(ctx, spec, StateInitialized)
	}
	for _, spec := range queue {
		m.loadPlugin(ctx, spec, StateRunning)
		if spec.state == StateRunning {
			m.delayedInitializeQueue = append(m.delayedInitializeQueue, spec)
		} else {
			// Startup failed somewhere on the way; clean up after it.
			spec.kill()
		}
	}

	m.notifier.emit(Event{Type: EventPluginsChanged})

	m.startDelayedInitialize(ctx)
}

// loadPlugin advances a single spec to destState, honoring the state
// precondition, the error and disabled short-circuits, and the Required
// dependency gate.
func (m *PluginManager) loadPlugin(ctx context.Context, spec *PluginSpec, destState State) {
	if spec.HasError() || spec.state != destState-1 {
		return
	}

	// Don't load disabled plugins.
	if destState == StateLoaded && !spec.IsEffectivelyEnabled() {
		return
	}

	switch destState {
	case StateRunning:
		if spec.initializeExtensions() {
			m.recordTransition(ctx, spec, destState)
		}
		return
	case StateDeleted:
		spec.kill()
		if spec.state == StateDeleted {
			m.recordTransition(ctx, spec, destState)
		}
		return
	}

	// Check that the required dependencies have advanced without error.
	if destState == StateLoaded || destState == StateInitialized {
		for _, dep := range spec.dependencies {
			if dep.Type != DependencyRequired {
				continue
			}
			depSpec, ok := spec.dependencySpecs[dep]
			if !ok {
				continue
			}
			if depSpec.state != destState {
				spec.reportError(tr("Cannot load plugin because dependency failed to load: %s(%s)\nReason: %s",
					depSpec.name, depSpec.version, depSpec.errorString))
				m.logger.Warn("plugin skipped, dependency failed",
					m.pluginAttr(spec),
					slog.String("dependency", depSpec.name))
				return
			}
		}
	}

	switch destState {
	case StateLoaded:
		if spec.loadLibrary() {
			m.recordTransition(ctx, spec, destState)
		} else {
			m.logger.Warn("plugin failed to load", m.pluginAttr(spec), errAttr(spec.errorString))
		}
	case StateInitialized:
		if spec.initializePlugin() {
			m.recordTransition(ctx, spec, destState)
		} else {
			m.logger.Warn("plugin failed to initialize", m.pluginAttr(spec), errAttr(spec.errorString))
		}
	case StateStopped:
		if spec.stop() == plugin.AsynchronousShutdown {
			m.asynchronousPlugins[spec] = struct{}{}
			m.logger.Debug("plugin shuts down asynchronously", m.pluginAttr(spec))
		}
		if spec.state == StateStopped {
			m.recordTransition(ctx, spec, destState)
		}
	}
}

// startDelayedInitialize drains the delayed-initialize queue in FIFO order,
// yielding to the host between entries that reported work, then fires the
// one-shot initializationDone notification.
func (m *PluginManager) startDelayedInitialize(ctx context.Context) {
	for len(m.delayedInitializeQueue) > 0 {
		spec := m.delayedInitializeQueue[0]
		m.delayedInitializeQueue = m.delayedInitializeQueue[1:]
		if spec.delayedInitialize() {
			m.yield()
		}
	}
	m.initializationDone = true
	m.notifier.emit(Event{Type: EventInitializationDone})
}

// Shutdown stops every plugin in reverse load-queue order, blocks until all
// plugins that opted into asynchronous shutdown have signaled completion, and
// finally deletes every plugin, releasing instances and loaders. A plugin
// that never signals blocks Shutdown forever; that is a plugin contract
// violation the manager does not compensate for.
func (m *PluginManager) Shutdown() {
	ctx, span := m.tracer.Start(context.Background(), "PluginManager.Shutdown")
	defer span.End()

	queue := m.LoadQueue()

	for i := len(queue) - 1; i >= 0; i-- {
		m.loadPlugin(ctx, queue[i], StateStopped)
	}

	if len(m.asynchronousPlugins) > 0 {
		m.logger.Info("waiting for asynchronous shutdowns",
			slog.Int("pending", len(m.asynchronousPlugins)))

		var wg sync.WaitGroup
		for spec := range m.asynchronousPlugins {
			done := spec.instance.AsynchronousShutdownFinished()
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-done
			}()
		}
		wg.Wait()
		m.asynchronousPlugins = make(map[*PluginSpec]struct{})
	}

	for i := len(queue) - 1; i >= 0; i-- {
		m.loadPlugin(ctx, queue[i], StateDeleted)
	}
}

// recordTransition logs a successful state advancement and counts it when
// metrics are configured.
func (m *PluginManager) recordTransition(ctx context.Context, spec *PluginSpec, state State) {
	m.logger.Debug("plugin state advanced",
		m.pluginAttr(spec),
		slog.String("state", state.String()))
	if m.transitions != nil {
		m.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", state.String()),
			attribute.String("plugin", spec.name),
		))
	}
}

func (m *PluginManager) pluginAttr(spec *PluginSpec) slog.Attr {
	return slog.String("plugin", spec.name)
}

func errAttr(message string) slog.Attr {
	return slog.String("error", message)
}

func containsString(list []string, s string) bool {
	for _, entry := range list {
		if entry == s {
			return true
		}
	}
	return false
}
