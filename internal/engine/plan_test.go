package engine

import (
	"errors"
	"testing"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Strategy ---

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyDefault, false},
		{"default", StrategyDefault, false},
		{"slave", StrategySlave, false},
		{"overwrite", StrategyOverwrite, false},
		{"merge", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		strategy   Strategy
		cacheEmpty bool
		want       Mode
	}{
		{StrategyDefault, false, ModeDefault},
		{StrategyDefault, true, ModeMerge},
		{StrategySlave, false, ModeSlave},
		{StrategySlave, true, ModeSlaveMerge},
		{StrategyOverwrite, false, ModeOverwrite},
		{StrategyOverwrite, true, ModeOverwriteMerge},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectMode(tt.strategy, tt.cacheEmpty))
		})
	}
}

func TestMergeModesNeverRemove(t *testing.T) {
	for _, m := range []Mode{ModeMerge, ModeSlaveMerge, ModeOverwriteMerge} {
		assert.False(t, m.policy().removals, m)
	}
}

// --- Failsafe ---

func removes(n int) *Plan {
	p := &Plan{Location: tree.Server}
	for range n {
		p.Removes = append(p.Removes, Action{Type: ActionRemove})
	}

	return p
}

func TestCheckFailsafe(t *testing.T) {
	tests := []struct {
		name      string
		removes   int
		local     int
		server    int
		threshold float64
		trips     bool
	}{
		{"no removals", 0, 100, 100, 0.5, false},
		{"below threshold", 5, 20, 20, 0.5, false},
		{"at threshold", 10, 20, 20, 0.5, false},
		{"above threshold", 11, 20, 20, 0.5, true},
		{"larger tree counts", 11, 2, 40, 0.5, false},
		{"small trees exempt", 5, 5, 5, 0.1, false},
		{"custom threshold", 3, 20, 20, 0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFailsafe(removes(tt.removes), tt.local, tt.server, tt.threshold)
			if !tt.trips {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrTooManyDeletions))
		})
	}
}

// --- Plan ---

func TestPlan_ActionsInExecutionOrder(t *testing.T) {
	p := &Plan{
		Updates: []Action{{Type: ActionUpdate}},
		Creates: []Action{{Type: ActionCreate}},
		Moves:   []Action{{Type: ActionMove}},
		Removes: []Action{{Type: ActionRemove}},
	}

	var types []ActionType
	for _, a := range p.Actions() {
		types = append(types, a.Type)
	}

	assert.Equal(t, []ActionType{ActionUpdate, ActionCreate, ActionMove, ActionRemove}, types)
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, Summary{Creates: 1, Updates: 1, Moves: 1, Removes: 1}, p.Summary())
}

func TestByDepth(t *testing.T) {
	levels := byDepth([]Action{{Depth: 1}, {Depth: 1}, {Depth: 2}, {Depth: 3}, {Depth: 3}})

	require.Len(t, levels, 3)
	assert.Len(t, levels[0], 2)
	assert.Len(t, levels[1], 1)
	assert.Len(t, levels[2], 2)
}

// --- RenderDiff ---

func TestRenderDiff(t *testing.T) {
	assert.Empty(t, RenderDiff("a\nb\n", "a\nb\n"))
	assert.Equal(t, "  a\n- b\n+ c\n", RenderDiff("a\nb\n", "a\nc\n"))
	assert.Equal(t, "  a\n+ b\n", RenderDiff("a\n", "a\nb\n"))
}
