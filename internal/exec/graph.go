// Package exec implements the Execution Engine: graph building,
// evaluation order, per-node dispatch, ExecutionContext wiring, and the
// rate-limit/retry/cancellation machinery that ties the expression
// evaluator, execution logger and node executor registry together.
package exec

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/tolgayilmaz86/nervemind/internal/domain"
)

// Graph is an in-memory adjacency view over a Workflow's Nodes and
// Connections, built fresh for each Submit call.
type Graph struct {
	workflow *domain.Workflow

	forward map[uuid.UUID][]*domain.Connection // sourceNodeID -> outgoing
	reverse map[uuid.UUID][]*domain.Connection // targetNodeID -> incoming
}

// BuildGraph constructs a Graph from a Workflow.
func BuildGraph(workflow *domain.Workflow) *Graph {
	g := &Graph{
		workflow: workflow,
		forward:  map[uuid.UUID][]*domain.Connection{},
		reverse:  map[uuid.UUID][]*domain.Connection{},
	}
	for _, c := range workflow.Connections() {
		g.forward[c.SourceNodeID()] = append(g.forward[c.SourceNodeID()], c)
		g.reverse[c.TargetNodeID()] = append(g.reverse[c.TargetNodeID()], c)
	}
	return g
}

func (g *Graph) Outgoing(nodeID uuid.UUID) []*domain.Connection { return g.forward[nodeID] }
func (g *Graph) Incoming(nodeID uuid.UUID) []*domain.Connection { return g.reverse[nodeID] }

// DiscardedEdge records a cyclic connection the layering pass refused to
// traverse a second time.
type DiscardedEdge struct {
	Connection *domain.Connection
	Reason     string
}

// Layering computes the base evaluation order: a BFS
// topological layering where layer index is the longest path from any
// entry node, so a node with multiple incoming paths waits for its
// deepest predecessor. Tolerates cycles by visiting each node at most once
// and recording any edge that would re-enter an already-placed node as
// discarded, rather than failing the run: the engine must terminate even
// if the static graph contains a cycle.
func (g *Graph) Layering() (layers [][]uuid.UUID, discarded []DiscardedEdge, err error) {
	nodes := g.workflow.Nodes()
	if len(nodes) == 0 {
		return nil, nil, domain.NewDomainError(domain.ErrCodeValidationFailed, "workflow has no nodes", nil)
	}

	depth := map[uuid.UUID]int{}
	placed := map[uuid.UUID]bool{}

	entries := g.workflow.EntryNodes()
	if len(entries) == 0 {
		// No entry nodes at all means every node has an incoming edge: the
		// graph is a pure cycle. Pick the declared-first node as an
		// artificial root so the run still terminates.
		entries = []*domain.Node{nodes[0]}
	}

	queue := make([]uuid.UUID, 0, len(entries))
	for _, n := range entries {
		depth[n.ID()] = 0
		placed[n.ID()] = true
		queue = append(queue, n.ID())
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range g.Outgoing(id) {
			target := c.TargetNodeID()
			if placed[target] {
				// Re-entry into an already-placed node: either a genuine
				// structural cycle or a join the BFS reached via a
				// shallower path already. Only treat it as a discard (and
				// bump depth) when it would actually deepen the target;
				// otherwise it's a harmless second arrival at a join node.
				if depth[id]+1 > depth[target] {
					discarded = append(discarded, DiscardedEdge{Connection: c, Reason: "cyclic edge discarded to guarantee at-most-once evaluation"})
				}
				continue
			}
			d := depth[id] + 1
			if existing, ok := depth[target]; !ok || d > existing {
				depth[target] = d
			}
			placed[target] = true
			queue = append(queue, target)
		}
	}

	// Any node never reached by the BFS (disconnected, or downstream only
	// of a discarded cyclic edge) still gets a record: place it at depth 0
	// so it is attempted once, per the "at most once per run" guarantee.
	maxDepth := 0
	for _, n := range nodes {
		if !placed[n.ID()] {
			depth[n.ID()] = 0
			placed[n.ID()] = true
		}
		if depth[n.ID()] > maxDepth {
			maxDepth = depth[n.ID()]
		}
	}

	layers = make([][]uuid.UUID, maxDepth+1)
	for _, n := range nodes {
		d := depth[n.ID()]
		layers[d] = append(layers[d], n.ID())
	}
	// Deterministic within-layer order: each layer is sorted by node id
	// string, so nodes within a layer are not kept in declaration order.
	for _, layer := range layers {
		sort.Slice(layer, func(i, j int) bool { return layer[i].String() < layer[j].String() })
	}
	return layers, discarded, nil
}

// Node looks up a node by id, delegating to the underlying Workflow.
func (g *Graph) Node(id uuid.UUID) (*domain.Node, bool) { return g.workflow.Node(id) }

// NodeByIDString is a convenience wrapper for callers (executors, via
// SubgraphRunner) that only have a string node id, e.g. parsed out of a
// node's JSON configuration.
func (g *Graph) NodeByIDString(id string) (*domain.Node, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid node id %q: %w", id, err)
	}
	n, ok := g.Node(parsed)
	if !ok {
		return nil, fmt.Errorf("node %q not found in workflow", id)
	}
	return n, nil
}
