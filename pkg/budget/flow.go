// Package budget builds the budget flow graph shown to users as a Sankey
// diagram. Graphs are immutable values: every operation in this package
// returns a new Graph and leaves its inputs untouched.
package budget

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidGraphInput is returned when nodes or links cannot form a graph.
// Callers should surface a plain-language message instead of a chart.
var ErrInvalidGraphInput = errors.New("invalid graph input")

const (
	// MinFlowValue is the smallest amount a link may carry.
	MinFlowValue = 1e-6

	// SurplusEpsilon absorbs floating point noise when balancing a parent.
	SurplusEpsilon = 1e-6

	// SurplusNodeID names the synthetic node that receives a parent's remainder.
	SurplusNodeID = "Surplus"
)

// FlowNode is a named bucket such as "Income" or "Rent".
type FlowNode struct {
	ID string `json:"id"`
}

// FlowLink moves a monthly amount from one bucket to another.
type FlowLink struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  float64 `json:"value"`
}

// Graph is a normalized budget flow graph. Every link endpoint has a node
// and node ids are unique.
type Graph struct {
	Nodes []FlowNode `json:"nodes"`
	Links []FlowLink `json:"links"`
}

// Normalize validates nodes and links and returns a self-consistent graph.
//
// Declared nodes keep their order; blank ids are skipped and the first
// declaration of a duplicated id wins. Link endpoints that were never
// declared are synthesized in first-seen order, so no link is left dangling
// and no node is dropped.
func Normalize(nodes []FlowNode, links []FlowLink) (Graph, error) {
	seen := make(map[string]struct{}, len(nodes))
	out := make([]FlowNode, 0, len(nodes))

	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, FlowNode{ID: id})
	}

	for _, n := range nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			continue
		}
		add(id)
	}

	outLinks := make([]FlowLink, 0, len(links))
	for i, l := range links {
		source := strings.TrimSpace(l.Source)
		target := strings.TrimSpace(l.Target)
		if source == "" || target == "" {
			return Graph{}, fmt.Errorf("%w: link %d has a blank endpoint", ErrInvalidGraphInput, i)
		}
		if !validValue(l.Value) {
			return Graph{}, fmt.Errorf("%w: link %d (%s -> %s) has value %v", ErrInvalidGraphInput, i, source, target, l.Value)
		}
		add(source)
		add(target)
		outLinks = append(outLinks, FlowLink{Source: source, Target: target, Value: l.Value})
	}

	if len(outLinks) == 0 {
		return Graph{}, fmt.Errorf("%w: at least one link is required", ErrInvalidGraphInput)
	}
	if len(out) < 2 {
		return Graph{}, fmt.Errorf("%w: at least two distinct nodes are required, got %d", ErrInvalidGraphInput, len(out))
	}

	return Graph{Nodes: out, Links: outLinks}, nil
}

// Normalize re-runs normalization on g. It is a no-op for graphs produced
// by this package.
func (g Graph) Normalize() (Graph, error) {
	return Normalize(g.Nodes, g.Links)
}

func validValue(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= MinFlowValue
}

// HasNode reports whether id is a node of g.
func (g Graph) HasNode(id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// Empty reports whether g carries nothing worth rendering.
func (g Graph) Empty() bool {
	return len(g.Links) == 0
}

// Clone returns a deep copy of g.
func (g Graph) Clone() Graph {
	nodes := make([]FlowNode, len(g.Nodes))
	copy(nodes, g.Nodes)
	links := make([]FlowLink, len(g.Links))
	copy(links, g.Links)
	return Graph{Nodes: nodes, Links: links}
}

// Flow holds the summed amounts entering and leaving one node.
type Flow struct {
	In  decimal.Decimal
	Out decimal.Decimal
}

// Totals sums the inflow and outflow of every node. Sums are exact decimal
// additions of the link values.
func (g Graph) Totals() map[string]Flow {
	totals := make(map[string]Flow, len(g.Nodes))
	for _, n := range g.Nodes {
		totals[n.ID] = Flow{In: decimal.Zero, Out: decimal.Zero}
	}
	for _, l := range g.Links {
		v := decimal.NewFromFloat(l.Value)

		src := totals[l.Source]
		src.Out = src.Out.Add(v)
		totals[l.Source] = src

		dst := totals[l.Target]
		dst.In = dst.In.Add(v)
		totals[l.Target] = dst
	}
	return totals
}

// ComputeSurplus returns the link that would carry parentID's unallocated
// remainder to the Surplus node. It reports false when the remainder is zero
// or negative: over-allocation is left as-is and no amount is ever invented.
func ComputeSurplus(g Graph, parentID string) (FlowLink, bool) {
	inflow := decimal.Zero
	outflow := decimal.Zero
	for _, l := range g.Links {
		if l.Target == parentID {
			inflow = inflow.Add(decimal.NewFromFloat(l.Value))
		}
		if l.Source == parentID {
			outflow = outflow.Add(decimal.NewFromFloat(l.Value))
		}
	}

	remainder := inflow.Sub(outflow)
	if !remainder.GreaterThan(decimal.NewFromFloat(SurplusEpsilon)) {
		return FlowLink{}, false
	}

	return FlowLink{
		Source: parentID,
		Target: SurplusNodeID,
		Value:  remainder.InexactFloat64(),
	}, true
}

// Balance returns a copy of g with parentID's remainder routed to the
// Surplus node, creating that node if needed. It reports false and returns g
// unchanged when there is nothing to balance.
func Balance(g Graph, parentID string) (Graph, bool) {
	link, ok := ComputeSurplus(g, parentID)
	if !ok {
		return g, false
	}

	out := g.Clone()
	if !out.HasNode(SurplusNodeID) {
		out.Nodes = append(out.Nodes, FlowNode{ID: SurplusNodeID})
	}
	out.Links = append(out.Links, link)
	return out, true
}

// Parents returns, in node order, the ids of nodes that receive money from
// exactly one source and pass at least some of it on.
func Parents(g Graph) []string {
	sources := make(map[string]map[string]struct{})
	hasOut := make(map[string]bool)
	for _, l := range g.Links {
		if sources[l.Target] == nil {
			sources[l.Target] = make(map[string]struct{})
		}
		sources[l.Target][l.Source] = struct{}{}
		hasOut[l.Source] = true
	}

	var parents []string
	for _, n := range g.Nodes {
		if n.ID == SurplusNodeID {
			continue
		}
		if len(sources[n.ID]) == 1 && hasOut[n.ID] {
			parents = append(parents, n.ID)
		}
	}
	return parents
}

// BalanceAll balances every parent of g and returns the ids that received a
// Surplus link.
func BalanceAll(g Graph) (Graph, []string) {
	var balanced []string
	for _, id := range Parents(g) {
		var ok bool
		g, ok = Balance(g, id)
		if ok {
			balanced = append(balanced, id)
		}
	}
	return g, balanced
}
