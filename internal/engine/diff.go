package engine

import (
	"context"
	"strings"

	"github.com/alexjbarnes/marksync/internal/mapping"
	"github.com/alexjbarnes/marksync/internal/tree"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Preview is the outcome of a dry run: what each side would look like
// after the pass and the actions that would get it there.
type Preview struct {
	Mode       Mode
	LocalPlan  *Plan
	ServerPlan *Plan
	// LocalDiff and ServerDiff are line diffs of the inspected trees.
	LocalDiff  string
	ServerDiff string
	Errors     []error
}

// Preview computes the pass without touching either side or the mappings.
func (p *Process) Preview(ctx context.Context) (*Preview, error) {
	ps, err := p.plan(ctx, mapping.New(nil, "", p.mappings.Data()))
	if err != nil {
		return nil, err
	}

	after := tree.Inspect(ps.desired.toFolder(), false)

	pv := &Preview{
		Mode:       p.mode,
		LocalPlan:  ps.plans[tree.Local],
		ServerPlan: ps.plans[tree.Server],
		Errors:     ps.errs,
	}

	if ps.policy.targets[tree.Local] {
		pv.LocalDiff = RenderDiff(tree.Inspect(ps.local, false), after)
	}

	if ps.policy.targets[tree.Server] {
		pv.ServerDiff = RenderDiff(tree.Inspect(ps.server, false), after)
	}

	return pv, nil
}

// RenderDiff returns a line diff of two texts. Added lines start with "+ ",
// removed lines with "- " and unchanged lines with two spaces. Equal texts
// give an empty string.
func RenderDiff(before, after string) string {
	if before == after {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder

	for _, d := range diffs {
		prefix := "  "

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffEqual:
		}

		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}

			sb.WriteString(prefix)
			sb.WriteString(line)

			if !strings.HasSuffix(line, "\n") {
				sb.WriteString("\n")
			}
		}
	}

	return sb.String()
}
