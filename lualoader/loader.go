package lualoader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/forgelight/extensionsystem/plugin"
)

// Lua callback names looked up in the plugin table.
const (
	fnInitialize            = "initialize"
	fnExtensionsInitialized = "extensions_initialized"
	fnDelayedInitialize     = "delayed_initialize"
	fnAboutToShutdown       = "about_to_shutdown"
)

// shutdownAsynchronous is the about_to_shutdown return value requesting an
// asynchronous shutdown.
const shutdownAsynchronous = "asynchronous"

// Loader implements plugin.Loader over a Lua chunk next to the descriptor.
type Loader struct {
	descriptorPath string
	state          *lua.LState
	instance       *luaPlugin
}

// New creates a Loader for the descriptor at path. The plugin chunk is the
// sibling file with the .json extension replaced by .lua.
func New(path string) plugin.Loader {
	return &Loader{descriptorPath: path}
}

// ChunkPath returns the path of the Lua chunk the loader executes.
func (l *Loader) ChunkPath() string {
	return strings.TrimSuffix(l.descriptorPath, ".json") + ".lua"
}

// Metadata reads and parses the descriptor file without executing any Lua.
func (l *Loader) Metadata() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(l.descriptorPath)
	if err != nil {
		return nil, fmt.Errorf("lualoader: read descriptor: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lualoader: parse descriptor: %w", err)
	}
	return doc, nil
}

// Load executes the plugin chunk and wraps the returned callback table as a
// plugin.Plugin. Loading twice without Unload returns the same instance.
func (l *Loader) Load() (plugin.Plugin, error) {
	if l.instance != nil {
		return l.instance, nil
	}

	chunkPath := l.ChunkPath()
	if _, err := os.Stat(chunkPath); err != nil {
		return nil, fmt.Errorf("plugin chunk %s not found", chunkPath)
	}

	state := lua.NewState()
	instance := &luaPlugin{state: state}

	// The host table lets plugin code call back into the extension system.
	host := state.NewTable()
	state.SetField(host, "finish_shutdown", state.NewFunction(func(L *lua.LState) int {
		instance.EmitAsynchronousShutdownFinished()
		return 0
	}))
	state.SetGlobal("host", host)

	if err := state.DoFile(chunkPath); err != nil {
		state.Close()
		return nil, fmt.Errorf("executing plugin chunk failed: %w", err)
	}

	ret := state.Get(-1)
	state.Pop(1)
	table, ok := ret.(*lua.LTable)
	if !ok {
		state.Close()
		return nil, errors.New("plugin chunk did not return a table")
	}

	instance.callbacks = table
	l.state = state
	l.instance = instance
	return instance, nil
}

// Unload closes the Lua state backing the instance.
func (l *Loader) Unload() {
	if l.state != nil {
		l.state.Close()
		l.state = nil
	}
	l.instance = nil
}

// luaPlugin dispatches plugin lifecycle calls into the callback table. All
// calls run on the manager's lifecycle goroutine; the LState is never shared
// across goroutines.
type luaPlugin struct {
	plugin.Base
	state     *lua.LState
	callbacks *lua.LTable
}

func (p *luaPlugin) callback(name string) lua.LValue {
	return p.state.GetField(p.callbacks, name)
}

// Initialize calls the chunk's initialize function. The function may return
// (false, message) to fail, any other result succeeds. A missing function is
// a no-op.
func (p *luaPlugin) Initialize(arguments []string) error {
	fn := p.callback(fnInitialize)
	if fn == lua.LNil {
		return nil
	}

	args := p.state.NewTable()
	for _, arg := range arguments {
		args.Append(lua.LString(arg))
	}

	if err := p.state.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, args); err != nil {
		return err
	}
	okValue := p.state.Get(-2)
	message := p.state.Get(-1)
	p.state.Pop(2)

	if okValue == lua.LFalse {
		if s, ok := message.(lua.LString); ok && string(s) != "" {
			return errors.New(string(s))
		}
		return errors.New("initialize returned false")
	}
	return nil
}

// ExtensionsInitialized calls the chunk's extensions_initialized function.
// Errors in the callback cannot fail the transition and are dropped.
func (p *luaPlugin) ExtensionsInitialized() {
	fn := p.callback(fnExtensionsInitialized)
	if fn == lua.LNil {
		return
	}
	_ = p.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
}

// DelayedInitialize calls the chunk's delayed_initialize function and
// forwards its truthiness as the "did substantive work" hint.
func (p *luaPlugin) DelayedInitialize() bool {
	fn := p.callback(fnDelayedInitialize)
	if fn == lua.LNil {
		return false
	}
	if err := p.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return false
	}
	ret := p.state.Get(-1)
	p.state.Pop(1)
	return lua.LVAsBool(ret)
}

// AboutToShutdown calls the chunk's about_to_shutdown function. Returning the
// string "asynchronous" requests an asynchronous shutdown; anything else is
// synchronous.
func (p *luaPlugin) AboutToShutdown() plugin.ShutdownFlag {
	fn := p.callback(fnAboutToShutdown)
	if fn == lua.LNil {
		return plugin.SynchronousShutdown
	}
	if err := p.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return plugin.SynchronousShutdown
	}
	ret := p.state.Get(-1)
	p.state.Pop(1)
	if s, ok := ret.(lua.LString); ok && strings.EqualFold(string(s), shutdownAsynchronous) {
		return plugin.AsynchronousShutdown
	}
	return plugin.SynchronousShutdown
}
