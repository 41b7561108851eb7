// Package lualoader materializes plugin instances from Lua chunks.
//
// Go cannot portably load native shared libraries at runtime, so the default
// dynamic-code capability of the extension system is a Lua runtime: a plugin
// descriptor <name>.json sits next to a chunk <name>.lua, and loading the
// plugin executes the chunk. The chunk returns a table of lifecycle callbacks,
// all optional:
//
//	return {
//	    initialize = function(args)
//	        -- return false, "message" to fail initialization
//	        return true
//	    end,
//	    extensions_initialized = function() end,
//	    delayed_initialize = function() return false end,
//	    about_to_shutdown = function() return "synchronous" end,
//	}
//
// A chunk whose about_to_shutdown returns "asynchronous" signals completion
// later by calling host.finish_shutdown().
//
// Plugin chunks run with the full standard library; isolating plugin code is
// out of scope for the extension system.
package lualoader
