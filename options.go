package extensionsystem

import (
	"log/slog"

	"github.com/forgelight/extensionsystem/plugin"
	"github.com/forgelight/extensionsystem/settings"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a PluginManager.
type Option func(*managerConfig)

// managerConfig holds configuration collected from Options.
type managerConfig struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	iid           string
	pluginPaths   []string
	settings      settings.Store
	loaderFactory plugin.LoaderFactory
	platformName  string
	yield         func()
}

// WithLogger sets a custom logger for the manager.
// If not provided, a default JSON logger on stdout is created.
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer; LoadPlugins and Shutdown run
// inside spans. Tracing is off by default.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *managerConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter used for the lifecycle transition
// counter. Metrics are off by default.
func WithMeter(meter metric.Meter) Option {
	return func(c *managerConfig) {
		c.meter = meter
	}
}

// WithIID sets the plugin interface identifier. Descriptor files whose IID
// does not string-match are not plugins of this host and are skipped.
func WithIID(iid string) Option {
	return func(c *managerConfig) {
		c.iid = iid
	}
}

// WithPluginPaths sets the directories ReadPlugins scans for descriptor
// files. Missing directories are skipped silently.
func WithPluginPaths(paths ...string) Option {
	return func(c *managerConfig) {
		c.pluginPaths = paths
	}
}

// WithSettings sets the persistent store consulted for user plugin
// enablement. Defaults to an in-memory store, i.e. no persistence.
func WithSettings(store settings.Store) Option {
	return func(c *managerConfig) {
		c.settings = store
	}
}

// WithLoaderFactory overrides how plugin instances are materialized from
// descriptor paths. The default executes a Lua chunk next to the descriptor
// (see the lualoader package).
func WithLoaderFactory(factory plugin.LoaderFactory) Option {
	return func(c *managerConfig) {
		c.loaderFactory = factory
	}
}

// WithPlatformName overrides the host platform string matched against plugin
// platform patterns. Defaults to hostinfo.PlatformName().
func WithPlatformName(name string) Option {
	return func(c *managerConfig) {
		c.platformName = name
	}
}

// WithDelayedInitializeYield overrides how the delayed-initialize pump yields
// to the host between entries that reported work. The default sleeps for
// 20 ms; hosts with their own event loop pump it here instead.
func WithDelayedInitializeYield(yield func()) Option {
	return func(c *managerConfig) {
		c.yield = yield
	}
}
