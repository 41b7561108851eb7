package extensionsystem

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/forgelight/extensionsystem/plugin"
)

// State is the lifecycle state of a PluginSpec. During startup a spec only
// moves forward through the states; a failed transition leaves the state
// where it was and records an error string instead.
type State int

const (
	// StateInvalid - the descriptor has not been read, or reading failed.
	StateInvalid State = iota

	// StateRead - descriptor parsed and validated.
	StateRead

	// StateResolved - dependencies bound to their PluginSpecs.
	StateResolved

	// StateLoaded - plugin code executed, instance available.
	StateLoaded

	// StateInitialized - the plugin's Initialize callback succeeded.
	StateInitialized

	// StateRunning - ExtensionsInitialized has run; the plugin is live.
	StateRunning

	// StateStopped - AboutToShutdown has run.
	StateStopped

	// StateDeleted - instance and loader released.
	StateDeleted
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateRead:
		return "read"
	case StateResolved:
		return "resolved"
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// DependencyType distinguishes how strongly a plugin depends on another.
type DependencyType int

const (
	// DependencyRequired dependencies must resolve and load; a failure
	// propagates to the dependent.
	DependencyRequired DependencyType = iota

	// DependencyOptional dependencies are used when present and silently
	// ignored when missing.
	DependencyOptional

	// DependencyTest dependencies are bound when present and excluded from
	// load ordering and from the dependency gate.
	DependencyTest
)

// String returns the descriptor spelling of the type.
func (t DependencyType) String() string {
	switch t {
	case DependencyRequired:
		return "required"
	case DependencyOptional:
		return "optional"
	case DependencyTest:
		return "test"
	default:
		return "unknown"
	}
}

// PluginDependency is one declared dependency of a plugin. Equality is
// structural over all three fields.
type PluginDependency struct {
	Name    string
	Version string
	Type    DependencyType
}

// String returns "name (version)".
func (d PluginDependency) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Version)
}

// PluginArgumentDescription documents a command-line option a plugin accepts.
type PluginArgumentDescription struct {
	Name        string
	Parameter   string
	Description string
}

// PluginSpec is the in-memory record for one discovered plugin: its
// descriptor metadata, dependency graph edges, lifecycle state, and the
// loaded instance. Specs are created and mutated exclusively by their
// PluginManager; all exported methods except AddArguments are read-only
// accessors.
type PluginSpec struct {
	name          string
	version       string
	compatVersion string

	vendor          string
	category        string
	description     string
	longDescription string
	url             string
	revision        string
	copyright       string
	license         string

	location string
	filePath string

	platformPattern *regexp.Regexp
	platformName    string

	required          bool
	experimental      bool
	enabledByDefault  bool
	enabledBySettings bool

	metaData map[string]json.RawMessage

	state       State
	errorString string

	dependencies    []PluginDependency
	dependencySpecs map[PluginDependency]*PluginSpec

	arguments            []string
	argumentDescriptions []PluginArgumentDescription

	instance plugin.Plugin
	loader   plugin.Loader
}

// Name returns the plugin name.
func (spec *PluginSpec) Name() string { return spec.name }

// Version returns the plugin version.
func (spec *PluginSpec) Version() string { return spec.version }

// CompatVersion returns the earliest version this plugin is compatible with.
func (spec *PluginSpec) CompatVersion() string { return spec.compatVersion }

// Vendor returns the plugin vendor.
func (spec *PluginSpec) Vendor() string { return spec.vendor }

// Category returns the grouping category for UI purposes.
func (spec *PluginSpec) Category() string { return spec.category }

// Description returns the one-line description.
func (spec *PluginSpec) Description() string { return spec.description }

// LongDescription returns the multi-line description.
func (spec *PluginSpec) LongDescription() string { return spec.longDescription }

// URL returns the plugin homepage.
func (spec *PluginSpec) URL() string { return spec.url }

// Revision returns the source revision the plugin was built from.
func (spec *PluginSpec) Revision() string { return spec.revision }

// Copyright returns the copyright notice.
func (spec *PluginSpec) Copyright() string { return spec.copyright }

// License returns the license text.
func (spec *PluginSpec) License() string { return spec.license }

// Location returns the directory containing the descriptor file.
func (spec *PluginSpec) Location() string { return spec.location }

// FilePath returns the absolute path of the descriptor file.
func (spec *PluginSpec) FilePath() string { return spec.filePath }

// PlatformPattern returns the compiled platform gate, or nil when the plugin
// runs everywhere.
func (spec *PluginSpec) PlatformPattern() *regexp.Regexp { return spec.platformPattern }

// IsRequired reports whether the plugin may not be disabled by the user.
func (spec *PluginSpec) IsRequired() bool { return spec.required }

// IsExperimental reports whether the plugin is experimental and therefore
// disabled unless explicitly enabled.
func (spec *PluginSpec) IsExperimental() bool { return spec.experimental }

// IsEnabledByDefault reports the descriptor's default enablement.
func (spec *PluginSpec) IsEnabledByDefault() bool { return spec.enabledByDefault }

// IsEnabledBySettings reports the effective user decision.
func (spec *PluginSpec) IsEnabledBySettings() bool { return spec.enabledBySettings }

// Metadata returns the parsed MetaData object of the descriptor.
func (spec *PluginSpec) Metadata() map[string]json.RawMessage { return spec.metaData }

// State returns the current lifecycle state.
func (spec *PluginSpec) State() State { return spec.state }

// ErrorString returns the recorded error, or "" when the spec is healthy.
func (spec *PluginSpec) ErrorString() string { return spec.errorString }

// HasError reports whether any lifecycle operation on this spec has failed.
func (spec *PluginSpec) HasError() bool { return spec.errorString != "" }

// Dependencies returns the declared dependencies in descriptor order.
func (spec *PluginSpec) Dependencies() []PluginDependency {
	deps := make([]PluginDependency, len(spec.dependencies))
	copy(deps, spec.dependencies)
	return deps
}

// DependencySpecs returns the resolved dependency mapping. Dependencies that
// did not resolve have no entry.
func (spec *PluginSpec) DependencySpecs() map[PluginDependency]*PluginSpec {
	specs := make(map[PluginDependency]*PluginSpec, len(spec.dependencySpecs))
	for dep, depSpec := range spec.dependencySpecs {
		specs[dep] = depSpec
	}
	return specs
}

// Arguments returns the runtime arguments accumulated for the plugin.
func (spec *PluginSpec) Arguments() []string {
	args := make([]string, len(spec.arguments))
	copy(args, spec.arguments)
	return args
}

// AddArguments appends runtime arguments passed to the plugin's Initialize.
func (spec *PluginSpec) AddArguments(arguments []string) {
	spec.arguments = append(spec.arguments, arguments...)
}

// ArgumentDescriptions returns the options the plugin declares.
func (spec *PluginSpec) ArgumentDescriptions() []PluginArgumentDescription {
	descs := make([]PluginArgumentDescription, len(spec.argumentDescriptions))
	copy(descs, spec.argumentDescriptions)
	return descs
}

// Plugin returns the loaded instance, or nil before Loaded and after Deleted.
func (spec *PluginSpec) Plugin() plugin.Plugin { return spec.instance }

// IsAvailableForHostPlatform reports whether the platform gate matches the
// host platform string.
func (spec *PluginSpec) IsAvailableForHostPlatform() bool {
	return spec.platformPattern == nil || spec.platformPattern.MatchString(spec.platformName)
}

// IsEffectivelyEnabled reports whether the plugin will actually be loaded:
// the host platform matches and the plugin is enabled in settings. An
// experimental plugin that was never explicitly enabled is disabled here.
func (spec *PluginSpec) IsEffectivelyEnabled() bool {
	if !spec.IsAvailableForHostPlatform() {
		return false
	}
	return spec.enabledBySettings
}

// reportError records the first failure on the spec. Later failures are
// dropped: once a spec is in error every lifecycle operation on it is a
// no-op, so the first message names the root cause.
func (spec *PluginSpec) reportError(message string) {
	if spec.errorString == "" {
		spec.errorString = message
	}
}

// reset restores the spec to its pristine pre-read shape so that reading a
// descriptor is idempotent.
func (spec *PluginSpec) reset() {
	*spec = PluginSpec{enabledByDefault: true, enabledBySettings: true}
}

// loadLibrary advances Resolved -> Loaded by materializing the plugin
// instance through the loader.
func (spec *PluginSpec) loadLibrary() bool {
	if spec.HasError() {
		return false
	}
	if spec.state != StateResolved {
		if spec.state == StateLoaded {
			return true
		}
		spec.reportError(tr("Loading the library failed because state != Resolved"))
		return false
	}
	instance, err := spec.loader.Load()
	if err != nil {
		spec.reportError(spec.filePath + ": " + err.Error())
		return false
	}
	if instance == nil {
		spec.reportError(tr("Plugin is not valid (does not implement the plugin interface)"))
		spec.loader.Unload()
		return false
	}
	spec.state = StateLoaded
	spec.instance = instance
	return true
}

// initializePlugin advances Loaded -> Initialized through the plugin's
// Initialize callback.
func (spec *PluginSpec) initializePlugin() bool {
	if spec.HasError() {
		return false
	}
	if spec.state != StateLoaded {
		if spec.state == StateInitialized {
			return true
		}
		spec.reportError(tr("Initializing the plugin failed because state != Loaded"))
		return false
	}
	if spec.instance == nil {
		spec.reportError(tr("Internal error: have no plugin instance to initialize"))
		return false
	}
	if err := spec.instance.Initialize(spec.arguments); err != nil {
		spec.reportError(tr("Plugin initialization failed: %s", err.Error()))
		return false
	}
	spec.state = StateInitialized
	return true
}

// initializeExtensions advances Initialized -> Running.
func (spec *PluginSpec) initializeExtensions() bool {
	if spec.HasError() {
		return false
	}
	if spec.state != StateInitialized {
		if spec.state == StateRunning {
			return true
		}
		spec.reportError(tr("Cannot perform extensionsInitialized because state != Initialized"))
		return false
	}
	if spec.instance == nil {
		spec.reportError(tr("Internal error: have no plugin instance to perform extensionsInitialized"))
		return false
	}
	spec.instance.ExtensionsInitialized()
	spec.state = StateRunning
	return true
}

// delayedInitialize runs the plugin's incremental startup step. The return
// value forwards the plugin's "did substantive work" hint.
func (spec *PluginSpec) delayedInitialize() bool {
	if spec.HasError() {
		return false
	}
	if spec.state != StateRunning {
		return false
	}
	if spec.instance == nil {
		spec.reportError(tr("Internal error: have no plugin instance to perform delayedInitialize"))
		return false
	}
	return spec.instance.DelayedInitialize()
}

// stop advances to Stopped and returns the plugin's shutdown mode. A spec
// without an instance has nothing to stop.
func (spec *PluginSpec) stop() plugin.ShutdownFlag {
	if spec.instance == nil {
		return plugin.SynchronousShutdown
	}
	spec.state = StateStopped
	return spec.instance.AboutToShutdown()
}

// kill releases the instance and the loader resource. Specs that never
// loaded are untouched.
func (spec *PluginSpec) kill() {
	if spec.instance == nil {
		return
	}
	spec.instance = nil
	if spec.loader != nil {
		spec.loader.Unload()
	}
	spec.state = StateDeleted
}
