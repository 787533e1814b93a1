package engine

import (
	"fmt"

	"github.com/alexjbarnes/marksync/internal/tree"
)

// Strategy is the sync direction configured on an account.
type Strategy string

const (
	// StrategyDefault syncs both ways. The local side wins conflicts.
	StrategyDefault Strategy = "default"
	// StrategySlave makes the local tree follow the server. Local changes
	// are never sent.
	StrategySlave Strategy = "slave"
	// StrategyOverwrite makes the server follow the local tree.
	StrategyOverwrite Strategy = "overwrite"
)

// ParseStrategy validates a configured strategy name. An empty name is the
// default strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyDefault, nil
	case StrategyDefault, StrategySlave, StrategyOverwrite:
		return Strategy(s), nil
	}

	return "", fmt.Errorf("unknown strategy %q", s)
}

// Mode is the concrete behaviour of one pass, derived from the strategy and
// whether a cache from an earlier pass exists.
type Mode string

const (
	ModeDefault        Mode = "default"
	ModeMerge          Mode = "merge"
	ModeSlave          Mode = "slave"
	ModeSlaveMerge     Mode = "slave-merge"
	ModeOverwrite      Mode = "overwrite"
	ModeOverwriteMerge Mode = "overwrite-merge"
)

// SelectMode picks the mode for a pass. Without a cache every strategy
// falls back to its merge variant, which never deletes.
func SelectMode(s Strategy, cacheEmpty bool) Mode {
	switch s {
	case StrategySlave:
		if cacheEmpty {
			return ModeSlaveMerge
		}

		return ModeSlave
	case StrategyOverwrite:
		if cacheEmpty {
			return ModeOverwriteMerge
		}

		return ModeOverwrite
	default:
		if cacheEmpty {
			return ModeMerge
		}

		return ModeDefault
	}
}

// policy spells out what a mode does.
type policy struct {
	// master wins conflicts and provides the base structure.
	master tree.Location
	// threeWay compares both sides against the cache. Without it the
	// pass either mirrors the master or merges the union of both trees.
	threeWay bool
	// mirror makes the desired tree an exact copy of the master.
	mirror bool
	// removals allows removing items from a target side.
	removals bool
	// targets are the sides that get mutated.
	targets map[tree.Location]bool
}

func (m Mode) policy() policy {
	both := map[tree.Location]bool{tree.Local: true, tree.Server: true}

	switch m {
	case ModeMerge:
		return policy{master: tree.Local, targets: both}
	case ModeSlave:
		return policy{master: tree.Server, mirror: true, removals: true, targets: map[tree.Location]bool{tree.Local: true}}
	case ModeSlaveMerge:
		return policy{master: tree.Server, targets: map[tree.Location]bool{tree.Local: true}}
	case ModeOverwrite:
		return policy{master: tree.Local, mirror: true, removals: true, targets: map[tree.Location]bool{tree.Server: true}}
	case ModeOverwriteMerge:
		return policy{master: tree.Local, targets: map[tree.Location]bool{tree.Server: true}}
	default:
		return policy{master: tree.Local, threeWay: true, removals: true, targets: both}
	}
}
