package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the derby.* Lua table into L.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: derby global is defined in L with a log function.
func (m *Manager) RegisterModules(L *lua.LState, itemID string) {
	derby := L.NewTable()
	L.SetField(derby, "log", L.NewFunction(func(L *lua.LState) int {
		m.logger.Debug("scripting: gate log",
			zap.String("item", itemID),
			zap.String("msg", L.CheckString(1)),
		)
		return 0
	}))
	L.SetGlobal("derby", derby)
}
