// Package scripting runs item gate scripts in sandboxed GopherLua VMs. It
// has no dependency on game domain packages; callers pass plain values in
// through GateContext.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget of one gate call when no
// override is configured.
const DefaultInstructionLimit = 100_000

// Gates may read state and compute, nothing else.
var (
	safeLibs = []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath}

	blockedGlobals = []string{
		"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require",
		"rawset", "rawget", "setmetatable", "getmetatable", "module", "newproxy",
	}
)

// budget is a context that cancels itself once Done has been polled more
// than its limit. GopherLua polls Done once per opcode, so the limit is an
// exact instruction count.
type budget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func newBudget(instLimit int) *budget {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &budget{Context: ctx, cancel: cancel}
	b.left.Store(int64(instLimit))
	return b
}

func (b *budget) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

// NewSandboxedState returns an LState with only the base, table, string,
// and math libraries, the blocked globals removed, and an opcode budget of
// instLimit (0 means DefaultInstructionLimit).
//
// Postcondition: the caller owns the LState and must call L.Close() and the
// returned cancel func.
func NewSandboxedState(instLimit int) (*lua.LState, context.CancelFunc) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range safeLibs {
		open(L)
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L, resetBudget(L, instLimit)
}

// resetBudget installs a fresh opcode budget on L.
func resetBudget(L *lua.LState, instLimit int) context.CancelFunc {
	b := newBudget(instLimit)
	L.SetContext(b)
	return b.cancel
}
