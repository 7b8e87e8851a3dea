package scripting_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/derby/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core))
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func TestManager_NoGateAlwaysAllows(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.False(t, mgr.HasGate("stop"))
	assert.True(t, mgr.Allow(scripting.GateContext{ItemID: "stop"}))
}

func TestManager_GateSeesRaceContext(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGate("stop", `
		function allow(race)
			return race.remaining > 2 and race.target ~= race.pick and race.is_owner
		end
	`, 0))
	assert.True(t, mgr.HasGate("stop"))
	assert.True(t, mgr.Allow(scripting.GateContext{ItemID: "stop", Remaining: 5, Target: 2, Pick: 1, IsOwner: true}))
	assert.False(t, mgr.Allow(scripting.GateContext{ItemID: "stop", Remaining: 1, Target: 2, Pick: 1, IsOwner: true}))
	assert.False(t, mgr.Allow(scripting.GateContext{ItemID: "stop", Remaining: 5, Target: 2, Pick: 1}))
}

func TestManager_LoadGate_RequiresAllow(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.LoadGate("stop", `function permit(race) return true end`, 0)
	assert.Error(t, err)
	assert.False(t, mgr.HasGate("stop"))
}

func TestManager_LoadGate_SyntaxError(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.LoadGate("stop", `function allow(race) return`, 0))
}

func TestManager_RuntimeErrorDenies(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.LoadGate("stop", `function allow(race) error("boom") end`, 0))
	assert.False(t, mgr.Allow(scripting.GateContext{ItemID: "stop"}))
	assert.Equal(t, 1, logs.FilterMessage("scripting: gate runtime error").Len())
}

func TestManager_NonBooleanDenies(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.LoadGate("stop", `function allow(race) return 1 end`, 0))
	assert.False(t, mgr.Allow(scripting.GateContext{ItemID: "stop"}))
	assert.Equal(t, 1, logs.FilterMessage("scripting: gate returned non-boolean").Len())
}

func TestManager_InfiniteLoopDenied(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGate("stop", `function allow(race) while true do end end`, 1000))
	assert.False(t, mgr.Allow(scripting.GateContext{ItemID: "stop"}))
}

func TestManager_BudgetResetsPerCall(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGate("stop", `
		function allow(race)
			local n = 0
			for i = 1, 50 do n = n + i end
			return n > 0
		end
	`, 2000))
	for i := 0; i < 20; i++ {
		require.True(t, mgr.Allow(scripting.GateContext{ItemID: "stop"}), "call %d", i)
	}
}

func TestManager_LogModule(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.LoadGate("reroll", `
		function allow(race)
			derby.log("checked " .. race.item)
			return true
		end
	`, 0))
	assert.True(t, mgr.Allow(scripting.GateContext{ItemID: "reroll"}))
	entries := logs.FilterMessage("scripting: gate log").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "checked reroll", entries[0].ContextMap()["msg"])
}

func TestManager_ConcurrentAllow(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGate("stop", `function allow(race) return race.balance >= 100 end`, 0))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			balance := int64(50)
			if i%2 == 0 {
				balance = 200
			}
			assert.Equal(t, i%2 == 0, mgr.Allow(scripting.GateContext{ItemID: "stop", Balance: balance}))
		}(i)
	}
	wg.Wait()
}

func TestProperty_GateMirrorsThreshold(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.LoadGate("boost_down", `function allow(race) return race.elapsed < 3 end`, 0))
	rapid.Check(t, func(rt *rapid.T) {
		elapsed := rapid.Float64Range(0, 9).Draw(rt, "elapsed")
		assert.Equal(rt, elapsed < 3, mgr.Allow(scripting.GateContext{ItemID: "boost_down", Elapsed: elapsed}))
	})
}
