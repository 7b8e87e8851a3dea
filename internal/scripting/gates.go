package scripting

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// GateFunc is the Lua global every gate script must define:
//
//	function allow(race) return race.remaining > 2 end
const GateFunc = "allow"

// GateContext is the snapshot of a race handed to a gate script as the
// table argument of allow.
type GateContext struct {
	ItemID    string
	CallerID  string
	IsOwner   bool
	Pick      int
	Target    int
	Entities  int
	Elapsed   float64
	Remaining float64
	Balance   int64
	// UsedByCaller counts effects this caller already applied in the race.
	UsedByCaller int
}

type gate struct {
	mu     sync.Mutex
	L      *lua.LState
	cancel func()
	limit  int
}

// Manager owns one sandboxed LState per gated item.
//
// Manager is safe for concurrent use. Each LState is single-threaded, so
// calls into the same gate are serialized by that gate's mutex.
type Manager struct {
	mu     sync.RWMutex
	gates  map[string]*gate
	logger *zap.Logger
}

// NewManager creates a Manager with no gates.
//
// Precondition: logger must be non-nil.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		gates:  make(map[string]*gate),
		logger: logger,
	}
}

// LoadGate compiles src into a fresh VM for itemID, replacing any previous
// gate for that item.
//
// Precondition: itemID must be non-empty.
// Postcondition: on success the VM defines GateFunc.
func (m *Manager) LoadGate(itemID, src string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L, itemID)
	if err := L.DoString(src); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: loading gate for %q: %w", itemID, err)
	}
	if L.GetGlobal(GateFunc).Type() != lua.LTFunction {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: gate for %q does not define %s()", itemID, GateFunc)
	}

	m.mu.Lock()
	if old, ok := m.gates[itemID]; ok {
		old.mu.Lock()
		old.cancel()
		old.L.Close()
		old.mu.Unlock()
	}
	m.gates[itemID] = &gate{L: L, cancel: cancel, limit: instLimit}
	m.mu.Unlock()
	return nil
}

// HasGate reports whether itemID has a loaded gate.
func (m *Manager) HasGate(itemID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.gates[itemID]
	return ok
}

// Allow runs the gate for gc.ItemID. Items without a gate are always allowed.
// Runtime errors, budget exhaustion, and non-boolean results deny the item
// and are logged at Warn level.
func (m *Manager) Allow(gc GateContext) bool {
	m.mu.RLock()
	g, ok := m.gates[gc.ItemID]
	m.mu.RUnlock()
	if !ok {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancel()
	g.cancel = resetBudget(g.L, g.limit)

	err := g.L.CallByParam(lua.P{
		Fn:      g.L.GetGlobal(GateFunc),
		NRet:    1,
		Protect: true,
	}, gateTable(g.L, gc))
	if err != nil {
		m.logger.Warn("scripting: gate runtime error",
			zap.String("item", gc.ItemID),
			zap.String("caller", gc.CallerID),
			zap.Error(err),
		)
		return false
	}
	ret := g.L.Get(-1)
	g.L.Pop(1)
	b, isBool := ret.(lua.LBool)
	if !isBool {
		m.logger.Warn("scripting: gate returned non-boolean",
			zap.String("item", gc.ItemID),
			zap.String("type", ret.Type().String()),
		)
		return false
	}
	return bool(b)
}

// Close releases every VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.gates {
		g.mu.Lock()
		g.cancel()
		g.L.Close()
		g.mu.Unlock()
		delete(m.gates, id)
	}
}

func gateTable(L *lua.LState, gc GateContext) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("item", lua.LString(gc.ItemID))
	t.RawSetString("caller", lua.LString(gc.CallerID))
	t.RawSetString("is_owner", lua.LBool(gc.IsOwner))
	t.RawSetString("pick", lua.LNumber(gc.Pick))
	t.RawSetString("target", lua.LNumber(gc.Target))
	t.RawSetString("entities", lua.LNumber(gc.Entities))
	t.RawSetString("elapsed", lua.LNumber(gc.Elapsed))
	t.RawSetString("remaining", lua.LNumber(gc.Remaining))
	t.RawSetString("balance", lua.LNumber(gc.Balance))
	t.RawSetString("used_by_caller", lua.LNumber(gc.UsedByCaller))
	return t
}
