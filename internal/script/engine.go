// Package script runs a Lua chat hook. The script defines
//
//	function on_chat(msg) ... end
//
// where msg has the fields type, channel, sender, sender_guid and text.
// Returning a string sends it as a reply on the same medium; returning
// nil stays silent.
package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/realmwalker-project/realmwalker/internal/handler"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

const hookFunction = "on_chat"

// Engine wraps a single Lua VM. Calls are serialized.
type Engine struct {
	mu     sync.Mutex
	vm     *lua.LState
	logger zerolog.Logger
}

// NewEngine loads the script at path.
func NewEngine(path string) (*Engine, error) {
	e := newEngine()
	if err := e.vm.DoFile(path); err != nil {
		e.vm.Close()
		return nil, fmt.Errorf("failed to load script %s: %w", path, err)
	}
	e.logger.Info().Str("file", path).Msg("chat script loaded")
	return e, nil
}

// NewEngineFromString loads a script from source.
func NewEngineFromString(src string) (*Engine, error) {
	e := newEngine()
	if err := e.vm.DoString(src); err != nil {
		e.vm.Close()
		return nil, fmt.Errorf("failed to load script: %w", err)
	}
	return e, nil
}

func newEngine() *Engine {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, logger: util.ComponentLogger("script")}
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))
	return e
}

// luaLog exposes log(text) to scripts.
func (e *Engine) luaLog(L *lua.LState) int {
	e.logger.Info().Msg(L.CheckString(1))
	return 0
}

// OnChat implements handler.ChatHook.
func (e *Engine) OnChat(ctx context.Context, msg handler.ChatMessage) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal(hookFunction)
	if fn == lua.LNil {
		return "", false, nil
	}

	t := e.vm.NewTable()
	t.RawSetString("type", lua.LString(msg.Type.String()))
	t.RawSetString("channel", lua.LString(msg.Channel))
	t.RawSetString("sender", lua.LString(msg.Sender))
	t.RawSetString("sender_guid", lua.LNumber(msg.SenderGUID))
	t.RawSetString("text", lua.LString(msg.Text))

	e.vm.SetContext(ctx)
	defer e.vm.RemoveContext()

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return "", false, fmt.Errorf("lua %s failed: %w", hookFunction, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	reply, ok := result.(lua.LString)
	if !ok || reply == "" {
		return "", false, nil
	}
	return string(reply), true, nil
}

// Close releases the VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}

var _ handler.ChatHook = (*Engine)(nil)
