package plugin

import "encoding/json"

// ShutdownFlag is returned by a plugin's AboutToShutdown hook to indicate
// whether the plugin will finish shutting down asynchronously.
type ShutdownFlag int

const (
	// SynchronousShutdown means the plugin is done when AboutToShutdown returns.
	SynchronousShutdown ShutdownFlag = iota

	// AsynchronousShutdown means the plugin performs asynchronous work during
	// shutdown and will signal completion via AsynchronousShutdownFinished.
	// The host blocks final deletion until every such plugin has signaled.
	AsynchronousShutdown
)

// String returns a string representation of the flag.
func (f ShutdownFlag) String() string {
	switch f {
	case SynchronousShutdown:
		return "synchronous"
	case AsynchronousShutdown:
		return "asynchronous"
	default:
		return "unknown"
	}
}

// Plugin is the capability set every loaded plugin exposes to the host.
//
// All methods are invoked on the host's lifecycle goroutine; implementations
// must not assume concurrent invocation. Embed Base for default behavior.
type Plugin interface {
	// Initialize is called after the plugin's code has been loaded and all
	// plugins it depends on have been initialized. arguments carries the
	// runtime options declared in the plugin's descriptor. A non-nil error
	// marks the plugin as failed; its dependents will not be initialized.
	Initialize(arguments []string) error

	// ExtensionsInitialized is called after all plugins' Initialize has run,
	// in dependency order. Object lookups across plugins are safe here.
	ExtensionsInitialized()

	// DelayedInitialize is called after all plugins are running, as part of an
	// incremental startup phase. The return value is an advisory hint: true
	// means the plugin did substantive work and the host should yield to its
	// event dispatcher before the next entry.
	DelayedInitialize() bool

	// AboutToShutdown is called in reverse dependency order when the host
	// shuts down. Return AsynchronousShutdown to keep the host waiting until
	// AsynchronousShutdownFinished fires.
	AboutToShutdown() ShutdownFlag

	// AsynchronousShutdownFinished returns a channel that is closed once the
	// plugin's asynchronous shutdown work is complete. Plugins embedding Base
	// close it via EmitAsynchronousShutdownFinished. A plugin that returned
	// AsynchronousShutdown and never closes the channel blocks shutdown
	// indefinitely; that is a plugin contract violation the host does not
	// compensate for.
	AsynchronousShutdownFinished() <-chan struct{}
}

// Loader maps a descriptor file to a plugin instance. It separates cheap
// metadata access from the (potentially expensive, side-effecting) act of
// executing plugin code, so the host can validate and resolve descriptors
// without running anything.
type Loader interface {
	// Metadata returns the parsed top-level descriptor document without
	// loading or executing any plugin code.
	Metadata() (map[string]json.RawMessage, error)

	// Load materializes the plugin instance. Called at most once per Loader
	// unless Unload was called in between.
	Load() (Plugin, error)

	// Unload releases the resources backing the loaded instance. Safe to call
	// when nothing is loaded.
	Unload()
}

// LoaderFactory creates a Loader for a descriptor file path. The host calls
// it once per discovered descriptor.
type LoaderFactory func(path string) Loader
