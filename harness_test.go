package extensionsystem

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/forgelight/extensionsystem/plugin"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// testIID is the interface identifier used by descriptors in tests.
const testIID = "org.forgelight.test"

// testPlatform is the injected host platform string.
const testPlatform = "Linux (testhost 1.0)"

// testPlugin is a recording implementation of plugin.Plugin.
type testPlugin struct {
	plugin.Base

	name string
	log  *callLog

	initErr      error
	shutdownFlag plugin.ShutdownFlag
	delayedWork  bool

	gotArgs []string
}

func (p *testPlugin) Initialize(arguments []string) error {
	p.gotArgs = arguments
	p.log.add(p.name + ":initialize")
	return p.initErr
}

func (p *testPlugin) ExtensionsInitialized() {
	p.log.add(p.name + ":extensionsInitialized")
}

func (p *testPlugin) DelayedInitialize() bool {
	p.log.add(p.name + ":delayedInitialize")
	return p.delayedWork
}

func (p *testPlugin) AboutToShutdown() plugin.ShutdownFlag {
	p.log.add(p.name + ":aboutToShutdown")
	return p.shutdownFlag
}

// callLog records lifecycle callback invocations across plugins.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]string, len(l.entries))
	copy(entries, l.entries)
	return entries
}

func (l *callLog) contains(entry string) bool {
	for _, e := range l.all() {
		if e == entry {
			return true
		}
	}
	return false
}

// stubLoader serves descriptor metadata from a file and instances from the
// harness, standing in for the Lua loader.
type stubLoader struct {
	path    string
	harness *testHarness
}

func (l *stubLoader) Metadata() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (l *stubLoader) Load() (plugin.Plugin, error) {
	name := strings.TrimSuffix(filepath.Base(l.path), ".json")
	if message, ok := l.harness.loadErrs[name]; ok {
		return nil, errors.New(message)
	}
	p, ok := l.harness.plugins[name]
	if !ok {
		p = &testPlugin{name: name, log: l.harness.log}
		l.harness.plugins[name] = p
	}
	return p, nil
}

func (l *stubLoader) Unload() {
	l.harness.mu.Lock()
	defer l.harness.mu.Unlock()
	l.harness.unloads = append(l.harness.unloads, filepath.Base(l.path))
}

// testHarness bundles a descriptor directory, stub plugins, and the shared
// call log for manager tests.
type testHarness struct {
	t        *testing.T
	dir      string
	log      *callLog
	plugins  map[string]*testPlugin
	loadErrs map[string]string

	mu      sync.Mutex
	unloads []string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	return &testHarness{
		t:        t,
		dir:      t.TempDir(),
		log:      &callLog{},
		plugins:  make(map[string]*testPlugin),
		loadErrs: make(map[string]string),
	}
}

func (h *testHarness) factory(path string) plugin.Loader {
	return &stubLoader{path: path, harness: h}
}

// plugin returns (creating on demand) the stub plugin behind name.
func (h *testHarness) plugin(name string) *testPlugin {
	p, ok := h.plugins[name]
	if !ok {
		p = &testPlugin{name: name, log: h.log}
		h.plugins[name] = p
	}
	return p
}

// descriptor writes a descriptor file for name. extra entries are merged into
// the MetaData object.
func (h *testHarness) descriptor(name, version string, extra map[string]any) {
	h.t.Helper()

	metaData := map[string]any{
		"Name":    name,
		"Version": version,
	}
	for key, value := range extra {
		metaData[key] = value
	}
	doc := map[string]any{
		"IID":      testIID,
		"MetaData": metaData,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		h.t.Fatalf("marshal descriptor %s: %v", name, err)
	}
	path := filepath.Join(h.dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.t.Fatalf("write descriptor %s: %v", name, err)
	}
}

// dependency builds a Dependencies entry.
func dependency(name, version, depType string) map[string]any {
	dep := map[string]any{"Name": name, "Version": version}
	if depType != "" {
		dep["Type"] = depType
	}
	return dep
}

// manager creates a PluginManager over the harness directory. Extra options
// append to the defaults.
func (h *testHarness) manager(opts ...Option) *PluginManager {
	base := []Option{
		WithIID(testIID),
		WithPluginPaths(h.dir),
		WithLoaderFactory(h.factory),
		WithPlatformName(testPlatform),
		WithLogger(discardLogger()),
		WithDelayedInitializeYield(func() {}),
	}
	return New(append(base, opts...)...)
}

func specNames(specs []*PluginSpec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name()
	}
	return names
}

// unloadCount returns how many loader unloads have happened.
func (h *testHarness) unloadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.unloads)
}
