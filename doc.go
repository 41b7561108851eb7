// Package extensionsystem implements the plugin runtime of the Forgelight
// host: descriptor discovery, dependency resolution, the plugin lifecycle
// state machine, a shared object registry, and coordinated shutdown.
//
// # Core Concepts
//
// The package is organized around a few key types:
//
//   - PluginSpec: the in-memory record for one discovered plugin — metadata,
//     dependencies, lifecycle state, and the loaded instance.
//   - PluginManager: the host container that owns all PluginSpecs and drives
//     them through the lifecycle.
//   - ObjectRegistry: a process-wide pool of objects plugins use to publish
//     and discover services from each other.
//   - plugin.Plugin: the capability set a loaded plugin exposes back to the
//     manager (see the plugin subpackage).
//
// # Lifecycle
//
// Every plugin progresses through the states Invalid, Read, Resolved, Loaded,
// Initialized, Running, Stopped, Deleted. Startup walks the dependency-sorted
// load queue three times — loading, initializing, then running each plugin —
// so that a plugin's dependencies always reach a state before the plugin
// itself does. Shutdown walks the queue in reverse. A plugin whose transition
// fails records an error string and is skipped from then on; its dependents
// fail with a chained error that preserves the root cause.
//
// # Getting Started
//
// A host configures a manager, points it at descriptor directories, and loads:
//
//	manager := extensionsystem.New(
//	    extensionsystem.WithIID("org.forgelight.plugin"),
//	    extensionsystem.WithPluginPaths("/usr/lib/forgelight/plugins"),
//	)
//	if err := manager.ReadPlugins(); err != nil {
//	    log.Fatal(err)
//	}
//	manager.LoadPlugins()
//	defer manager.Shutdown()
//
// Descriptor files are JSON documents with a top-level IID used as a
// first-pass filter and a MetaData object carrying name, version,
// dependencies, and gating flags. Plugin code is materialized by a
// plugin.Loader; the default factory executes a Lua chunk next to the
// descriptor (see the lualoader subpackage), but hosts can inject their own.
//
// # Concurrency
//
// The lifecycle machinery is single-threaded: ReadPlugins, LoadPlugins, and
// Shutdown must be called from one goroutine. Only the ObjectRegistry is safe
// for concurrent use, with many readers and exclusive writers.
package extensionsystem
