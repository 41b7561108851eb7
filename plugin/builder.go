package plugin

// InitializeFunc is the plugin's initialization callback.
type InitializeFunc func(arguments []string) error

// ExtensionsInitializedFunc runs after all plugins have initialized.
type ExtensionsInitializedFunc func()

// DelayedInitializeFunc runs during the incremental startup phase. The return
// value hints whether substantive work was done.
type DelayedInitializeFunc func() bool

// AboutToShutdownFunc runs during shutdown and picks the shutdown mode.
type AboutToShutdownFunc func() ShutdownFlag

// Config holds the callbacks for building a function-based plugin.
// Use NewConfig to create a configuration, set the callbacks, then call New.
type Config struct {
	initialize            InitializeFunc
	extensionsInitialized ExtensionsInitializedFunc
	delayedInitialize     DelayedInitializeFunc
	aboutToShutdown       AboutToShutdownFunc
}

// NewConfig creates a plugin configuration with no-op defaults.
func NewConfig() *Config {
	return &Config{}
}

// SetInitialize sets the initialization callback.
func (c *Config) SetInitialize(fn InitializeFunc) {
	c.initialize = fn
}

// SetExtensionsInitialized sets the extensions-initialized callback.
func (c *Config) SetExtensionsInitialized(fn ExtensionsInitializedFunc) {
	c.extensionsInitialized = fn
}

// SetDelayedInitialize sets the delayed-initialize callback.
func (c *Config) SetDelayedInitialize(fn DelayedInitializeFunc) {
	c.delayedInitialize = fn
}

// SetAboutToShutdown sets the shutdown callback.
func (c *Config) SetAboutToShutdown(fn AboutToShutdownFunc) {
	c.aboutToShutdown = fn
}

// funcPlugin dispatches lifecycle calls to configured callbacks, falling back
// to Base defaults for anything unset.
type funcPlugin struct {
	Base
	cfg Config
}

// New builds a Plugin from the configured callbacks. Unset callbacks keep the
// Base default behavior. The returned plugin exposes
// EmitAsynchronousShutdownFinished through its Base embedding; callers that
// return AsynchronousShutdown can signal completion with Finish.
func New(cfg *Config) Plugin {
	return &funcPlugin{cfg: *cfg}
}

func (p *funcPlugin) Initialize(arguments []string) error {
	if p.cfg.initialize == nil {
		return nil
	}
	return p.cfg.initialize(arguments)
}

func (p *funcPlugin) ExtensionsInitialized() {
	if p.cfg.extensionsInitialized != nil {
		p.cfg.extensionsInitialized()
	}
}

func (p *funcPlugin) DelayedInitialize() bool {
	if p.cfg.delayedInitialize == nil {
		return false
	}
	return p.cfg.delayedInitialize()
}

func (p *funcPlugin) AboutToShutdown() ShutdownFlag {
	if p.cfg.aboutToShutdown == nil {
		return SynchronousShutdown
	}
	return p.cfg.aboutToShutdown()
}

// Finish signals asynchronous shutdown completion on a function-based plugin.
// It is a no-op for plugins not built by New.
func Finish(p Plugin) {
	if fp, ok := p.(*funcPlugin); ok {
		fp.EmitAsynchronousShutdownFinished()
	}
}
