// Package plugin defines the capability set a loaded plugin exposes to the
// extension system, and the loader contract used to materialize plugin
// instances from descriptor files.
//
// A plugin participates in a multi-phase lifecycle driven by the host's
// PluginManager:
//
//   - Initialize is called once, in dependency order, after the plugin's code
//     has been loaded. Plugins set up themselves and register objects here.
//   - ExtensionsInitialized is called after every plugin in the set has been
//     initialized. Plugins that depend on objects published by other plugins
//     pick them up here.
//   - DelayedInitialize is an optional third startup phase, run after all
//     plugins are running, interleaved with host event processing.
//   - AboutToShutdown is called in reverse dependency order when the host
//     shuts down. A plugin that needs to finish asynchronous work returns
//     AsynchronousShutdown and signals completion later.
//
// Implementations embed Base to inherit default no-op behavior for everything
// except Initialize:
//
//	type myPlugin struct {
//		plugin.Base
//	}
//
//	func (p *myPlugin) Initialize(args []string) error {
//		// set up, publish objects
//		return nil
//	}
package plugin
