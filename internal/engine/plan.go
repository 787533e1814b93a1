package engine

import (
	"fmt"
	"sort"

	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/alexjbarnes/marksync/internal/tree"
)

// ActionType is the kind of mutation an action performs.
type ActionType string

const (
	ActionCreate  ActionType = "CREATE"
	ActionUpdate  ActionType = "UPDATE"
	ActionMove    ActionType = "MOVE"
	ActionRemove  ActionType = "REMOVE"
	ActionReorder ActionType = "REORDER"
)

// Action is one mutation of one side.
type Action struct {
	Type ActionType
	Kind tree.Kind
	// ID is the id on the mutated side, empty for creates.
	ID    string
	Title string
	URL   string
	// Depth in the desired tree for creates, in the current tree for
	// removes.
	Depth int

	key    key
	parent key
}

func (a Action) String() string {
	switch a.Type {
	case ActionCreate:
		return fmt.Sprintf("%s %s %q into %s", a.Type, a.Kind, a.Title, a.parent)
	case ActionMove:
		return fmt.Sprintf("%s %s %s into %s", a.Type, a.Kind, a.ID, a.parent)
	default:
		return fmt.Sprintf("%s %s %s %q", a.Type, a.Kind, a.ID, a.Title)
	}
}

// Plan is the ordered list of mutations for one side.
type Plan struct {
	Location tree.Location
	Updates  []Action
	// Creates are sorted parents first.
	Creates []Action
	Moves   []Action
	// Removes are sorted children first.
	Removes []Action
}

// Len returns the number of actions.
func (p *Plan) Len() int {
	return len(p.Updates) + len(p.Creates) + len(p.Moves) + len(p.Removes)
}

// Actions returns every action in execution order.
func (p *Plan) Actions() []Action {
	all := make([]Action, 0, p.Len())
	all = append(all, p.Updates...)
	all = append(all, p.Creates...)
	all = append(all, p.Moves...)
	all = append(all, p.Removes...)

	return all
}

// Summary counts actions per type.
type Summary struct {
	Creates  int `json:"creates"`
	Updates  int `json:"updates"`
	Moves    int `json:"moves"`
	Removes  int `json:"removes"`
	Reorders int `json:"reorders"`
}

// Summary counts the actions of the plan.
func (p *Plan) Summary() Summary {
	return Summary{
		Creates: len(p.Creates),
		Updates: len(p.Updates),
		Moves:   len(p.Moves),
		Removes: len(p.Removes),
	}
}

// buildPlan lists the mutations that turn s into d.
func buildPlan(s *side, d *desired, removals bool) *Plan {
	p := &Plan{Location: s.loc}

	for _, k := range s.keys {
		item := s.items[k]
		n, ok := d.nodes[k]

		if !ok {
			if removals {
				p.Removes = append(p.Removes, Action{
					Type:  ActionRemove,
					Kind:  k.kind,
					ID:    item.GetID(),
					Title: item.GetTitle(),
					Depth: s.idx.Depth(item.Ref()),
					key:   k,
				})
			}

			continue
		}

		if !sameContent(item, n.asItem()) {
			p.Updates = append(p.Updates, Action{
				Type:   ActionUpdate,
				Kind:   k.kind,
				ID:     item.GetID(),
				Title:  n.title,
				URL:    n.url,
				key:    k,
				parent: s.parent[k],
			})
		}

		if s.parent[k] != n.parent {
			p.Moves = append(p.Moves, Action{
				Type:   ActionMove,
				Kind:   k.kind,
				ID:     item.GetID(),
				Title:  n.title,
				URL:    n.url,
				key:    k,
				parent: n.parent,
			})
		}
	}

	d.walk(func(n *node, depth int) {
		if s.has(n.key) {
			return
		}

		p.Creates = append(p.Creates, Action{
			Type:   ActionCreate,
			Kind:   n.key.kind,
			Title:  n.title,
			URL:    n.url,
			Depth:  depth,
			key:    n.key,
			parent: n.parent,
		})
	})

	sort.SliceStable(p.Creates, func(i, j int) bool { return p.Creates[i].Depth < p.Creates[j].Depth })
	sort.SliceStable(p.Removes, func(i, j int) bool { return p.Removes[i].Depth > p.Removes[j].Depth })

	return p
}

func (n *node) asItem() tree.Item {
	if n.key.kind == tree.KindBookmark {
		return &tree.Bookmark{Title: n.title, URL: n.url}
	}

	return &tree.Folder{Title: n.title}
}

// checkFailsafe refuses plans that remove more than threshold of the larger
// tree. Small trees are exempt.
func checkFailsafe(p *Plan, localCount, serverCount int, threshold float64) error {
	total := max(localCount, serverCount)
	if total <= failsafeMinItems || len(p.Removes) == 0 {
		return nil
	}

	ratio := float64(len(p.Removes)) / float64(total)
	if ratio <= threshold {
		return nil
	}

	return &apperrors.FailsafeError{Percent: int(ratio*100 + 0.5), Location: string(p.Location)}
}

// failsafeMinItems is the tree size up to which the failsafe never trips.
const failsafeMinItems = 5
