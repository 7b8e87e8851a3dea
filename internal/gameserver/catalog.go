package gameserver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/config"
	"github.com/cory-johannsen/derby/internal/game/item"
	"github.com/cory-johannsen/derby/internal/scripting"
)

// LoadCatalog builds the item registry named by cfg and compiles every
// item's Lua gate.
//
// Postcondition: on success every Def with a LuaGate has a loaded gate. The
// caller must Close the returned Manager.
func LoadCatalog(cfg config.ItemsConfig, logger *zap.Logger) (*item.Registry, *scripting.Manager, error) {
	items := item.Defaults()
	if cfg.Dir != "" {
		loaded, err := item.LoadDirectory(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		items = loaded
	}

	gates := scripting.NewManager(logger)
	for _, def := range items.All() {
		if def.LuaGate == "" {
			continue
		}
		if err := gates.LoadGate(def.ID, def.LuaGate, cfg.GateInstructionLimit); err != nil {
			gates.Close()
			return nil, nil, fmt.Errorf("item %q: %w", def.ID, err)
		}
	}
	logger.Info("item catalog loaded",
		zap.Int("items", len(items.All())),
		zap.String("dir", cfg.Dir),
	)
	return items, gates, nil
}
