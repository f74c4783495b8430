package exec

import (
	"github.com/google/uuid"
	"github.com/tolgayilmaz86/nervemind/internal/domain"
	"github.com/tolgayilmaz86/nervemind/internal/exlang"
	"github.com/tolgayilmaz86/nervemind/internal/registry/builtin"
)

// joinEvaluator decides, for each incoming Connection of a candidate node,
// whether that edge is "active" this run. An edge is active when:
// - its Connection.Condition is blank (unconditional), or evaluates true
// via expr-lang; and
// - if the source node wrote the reserved builtin.HandleKey (if/switch/
// tryCatch routing), the edge's SourceOutput matches that handle.
type joinEvaluator struct {
	exprs *exlang.Evaluator
}

func newJoinEvaluator() *joinEvaluator {
	return &joinEvaluator{exprs: exlang.New()}
}

// edgeActive reports whether c should be followed, given the source node's
// recorded output (nil if the source has not executed/was skipped) and the
// merged variable scope for conditional-edge evaluation.
func (j *joinEvaluator) edgeActive(c *domain.Connection, sourceOutput map[string]any, sourceRan bool, scope map[string]any) (bool, error) {
	if !sourceRan {
		return false, nil
	}
	if c.Condition() != "" {
		ok, err := j.exprs.EvalBool(c.Condition(), scope)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if handle, ok := sourceOutput[builtin.HandleKey]; ok {
		wanted, _ := handle.(string)
		if wanted == "" {
			wanted = "main"
		}
		return c.SourceOutput() == wanted, nil
	}
	return true, nil
}

// readiness summarises whether a node is ready to dispatch: it has at
// least one predecessor (or none, i.e. an entry node) and every
// non-disabled predecessor has reached a terminal state, with at least one
// active incoming edge when the node has any incoming connections at all.
type readiness struct {
	Ready       bool
	AnyIncoming bool
	AnyActive   bool
}

// evaluateReadiness inspects nodeID's incoming connections against the
// current completion/skip state and, for connections whose source has run,
// whether that specific edge is active.
func (j *joinEvaluator) evaluateReadiness(
	g        *Graph,
	nodeID   uuid.UUID,
	terminal map[uuid.UUID]bool,
	outputs  map[uuid.UUID]map[string]any,
	ran      map[uuid.UUID]bool,
	scope    map[string]any,
) (readiness, error) {
	incoming := g.Incoming(nodeID)
	if len(incoming) == 0 {
		return readiness{Ready: true}, nil
	}
	r := readiness{AnyIncoming: true}
	allTerminal := true
	for _, c := range incoming {
		if !terminal[c.SourceNodeID()] {
			allTerminal = false
			continue
		}
		active, err := j.edgeActive(c, outputs[c.SourceNodeID()], ran[c.SourceNodeID()], scope)
		if err != nil {
			return r, err
		}
		if active {
			r.AnyActive = true
		}
	}
	r.Ready = allTerminal
	return r, nil
}
