// Package wfjson implements the "Workflow JSON" external interface:
// import/export of a domain.Workflow to the wire shape consumed by the
// (out-of-scope) editor canvas and plugin sample-workflow fixtures. Follows
// the domain<->wire-model split used elsewhere in this module (a
// *Model/ToDomain/NewXModel pattern), generalized from a DB row to a JSON
// document.
package wfjson

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
)

// Position is the canvas coordinate of a node. The engine never reads it;
// it is carried purely so round-tripping a workflow through JSON does not
// lose it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type nodeDoc struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Position     *Position      `json:"position,omitempty"`
	Parameters   map[string]any `json:"parameters"`
	Disabled     bool           `json:"disabled"`
	Notes        *string        `json:"notes"`
	CredentialID *string        `json:"credentialId,omitempty"`
}

type connectionDoc struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	SourceOutput string `json:"sourceOutput,omitempty"`
	TargetNodeID string `json:"targetNodeId"`
	TargetInput  string `json:"targetInput,omitempty"`
}

type workflowDoc struct {
	ID          *string         `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Nodes       []nodeDoc       `json:"nodes"`
	Connections []connectionDoc `json:"connections"`
	Settings    map[string]any  `json:"settings"`
}

// triggerKindSettingsKey stashes Workflow.TriggerKind inside the wire
// Settings map, since literal JSON shape has no top-level
// triggerKind field (only "settings": {...arbitrary map...}). Recorded in
// DESIGN.md as the Open-Question-adjacent decision for this gap.
const triggerKindSettingsKey = "_triggerKind"

// GuideStep is one entry of a sample workflow's "guide" list.
type GuideStep struct {
	Title          string   `json:"title" yaml:"title"`
	Content        string   `json:"content" yaml:"content"`
	HighlightNodes []string `json:"highlightNodes,omitempty" yaml:"highlightNodes,omitempty"`
	CodeSnippet    string   `json:"codeSnippet,omitempty" yaml:"codeSnippet,omitempty"`
}

// SampleMetadata carries the additional fields attached to sample
// workflows beyond the core import/export shape: category, difficulty,
// tags, author, version, the guided-tour step list, required credentials
// and environment variables a new user must supply before running it.
type SampleMetadata struct {
	ID                   string      `json:"id" yaml:"id"`
	Category             string      `json:"category" yaml:"category"`
	Difficulty           string      `json:"difficulty" yaml:"difficulty"` // beginner|intermediate|advanced
	Language             string      `json:"language" yaml:"language"`
	Tags                 []string    `json:"tags" yaml:"tags"`
	Author               string      `json:"author" yaml:"author"`
	Version              string      `json:"version" yaml:"version"`
	Guide                []GuideStep `json:"guide" yaml:"guide"`
	RequiredCredentials  []string    `json:"requiredCredentials" yaml:"requiredCredentials"`
	EnvironmentVariables []string    `json:"environmentVariables" yaml:"environmentVariables"`
}

// Positions maps a node id to its canvas coordinates, threaded alongside a
// domain.Workflow since Node itself carries no UI state.
type Positions map[uuid.UUID]Position

// Encode renders a Workflow to the wire shape. positions may be
// nil; a position is omitted for any node not present in the map.
func Encode(w *domain.Workflow, positions Positions) ([]byte, error) {
	doc, err := toDoc(w, positions)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", " ")
}

func toDoc(w *domain.Workflow, positions Positions) (*workflowDoc, error) {
	id := w.ID().String()
	settings := cloneSettings(w.Settings())
	settings[triggerKindSettingsKey] = string(w.TriggerKind())

	// domain.Workflow carries no Description field; the wire
	// "description" is accepted on import but has nowhere to land on
	// export, so it always round-trips empty. Editor-facing metadata like
	// this belongs to the out-of-scope application layer, not the engine.
	doc := &workflowDoc{
		ID:       &id,
		Name:     w.Name(),
		Settings: settings,
	}

	for _, n := range w.Nodes() {
		nd := nodeDoc{
			ID:         n.ID().String(),
			Type:       n.Type(),
			Name:       n.Name(),
			Parameters: n.Parameters(),
			Disabled:   n.Disabled(),
		}
		if n.Notes() != "" {
			notes := n.Notes()
			nd.Notes = &notes
		}
		if n.CredentialID() != nil {
			cid := n.CredentialID().String()
			nd.CredentialID = &cid
		}
		if pos, ok := positions[n.ID()]; ok {
			p := pos
			nd.Position = &p
		}
		doc.Nodes = append(doc.Nodes, nd)
	}

	for _, c := range w.Connections() {
		doc.Connections = append(doc.Connections, connectionDoc{
			ID:           c.ID().String(),
			SourceNodeID: c.SourceNodeID().String(),
			SourceOutput: c.SourceOutput(),
			TargetNodeID: c.TargetNodeID().String(),
			TargetInput:  c.TargetInput(),
		})
	}
	return doc, nil
}

// Decode parses the wire shape into a domain.Workflow, returning
// the per-node Positions alongside it.
func Decode(data []byte) (*domain.Workflow, Positions, error) {
	var doc workflowDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, &domainerrors.DataParsingError{Location: "workflow json", Message: err.Error(), Cause: err}
	}

	id := uuid.Nil
	if doc.ID != nil && *doc.ID != "" {
		parsed, err := uuid.Parse(*doc.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid workflow id %q: %w", *doc.ID, err)
		}
		id = parsed
	}

	settings := cloneSettings(doc.Settings)
	triggerKind := domain.TriggerKind(stringSetting(settings, triggerKindSettingsKey))
	delete(settings, triggerKindSettingsKey)

	wf, err := domain.NewWorkflow(id, doc.Name, settings, triggerKind)
	if err != nil {
		return nil, nil, err
	}

	positions := Positions{}
	nodeIDs := map[string]uuid.UUID{}
	for _, nd := range doc.Nodes {
		nodeID := uuid.Nil
		if nd.ID != "" {
			parsed, err := uuid.Parse(nd.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid node id %q: %w", nd.ID, err)
			}
			nodeID = parsed
		}
		var credentialID *uuid.UUID
		if nd.CredentialID != nil && *nd.CredentialID != "" {
			parsed, err := uuid.Parse(*nd.CredentialID)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid credential id %q: %w", *nd.CredentialID, err)
			}
			credentialID = &parsed
		}
		notes := ""
		if nd.Notes != nil {
			notes = *nd.Notes
		}
		node, err := domain.NewNode(nodeID, nd.Type, nd.Name, nd.Parameters, credentialID, nd.Disabled, notes)
		if err != nil {
			return nil, nil, err
		}
		if err := wf.AddNode(node); err != nil {
			return nil, nil, err
		}
		nodeIDs[nd.ID] = node.ID()
		if nd.Position != nil {
			positions[node.ID()] = *nd.Position
		}
	}

	for _, cd := range doc.Connections {
		connID := uuid.Nil
		if cd.ID != "" {
			parsed, err := uuid.Parse(cd.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid connection id %q: %w", cd.ID, err)
			}
			connID = parsed
		}
		srcID, ok := nodeIDs[cd.SourceNodeID]
		if !ok {
			return nil, nil, fmt.Errorf("connection %s references unknown source node %s", cd.ID, cd.SourceNodeID)
		}
		tgtID, ok := nodeIDs[cd.TargetNodeID]
		if !ok {
			return nil, nil, fmt.Errorf("connection %s references unknown target node %s", cd.ID, cd.TargetNodeID)
		}
		conn, err := domain.NewConnection(connID, srcID, cd.SourceOutput, tgtID, cd.TargetInput)
		if err != nil {
			return nil, nil, err
		}
		if err := wf.AddConnection(conn); err != nil {
			return nil, nil, err
		}
	}

	return wf, positions, nil
}

func cloneSettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func stringSetting(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
