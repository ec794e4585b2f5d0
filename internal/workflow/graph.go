package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidGraph reports a document that is not an API-format node graph.
var ErrInvalidGraph = errors.New("invalid workflow graph")

// Node is one entry of an API-format graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Meta      *NodeMeta      `json:"_meta,omitempty"`
}

// NodeMeta carries display metadata exported by the backend editor.
type NodeMeta struct {
	Title string `json:"title,omitempty"`
}

// Graph maps node ids to nodes. Linked inputs are encoded as
// [sourceNodeID, outputIndex] pairs and are left untouched by injection.
type Graph map[string]*Node

// NodeSummary describes a node for mapping editors.
type NodeSummary struct {
	ID        string   `json:"id"`
	ClassType string   `json:"class_type"`
	Title     string   `json:"title,omitempty"`
	Inputs    []string `json:"inputs"`
}

// Parse decodes an API-format graph and checks every node has a class type.
func Parse(data []byte) (Graph, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	if _, ok := raw["nodes"]; ok {
		if _, links := raw["links"]; links {
			return nil, fmt.Errorf("%w: editor export detected; save the workflow in API format", ErrInvalidGraph)
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: graph has no nodes", ErrInvalidGraph)
	}
	graph := make(Graph, len(raw))
	for id, payload := range raw {
		var node Node
		if err := json.Unmarshal(payload, &node); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidGraph, id, err)
		}
		if strings.TrimSpace(node.ClassType) == "" {
			return nil, fmt.Errorf("%w: node %s has no class_type", ErrInvalidGraph, id)
		}
		graph[id] = &node
	}
	return graph, nil
}

// Clone returns a deep copy produced by a JSON round trip so nested inputs
// never alias the original.
func (g Graph) Clone() (Graph, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("clone graph: %w", err)
	}
	out := make(Graph, len(g))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone graph: %w", err)
	}
	return out, nil
}

// NodeIDs returns node ids in ascending order, numerically when both ids are numbers.
func (g Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	SortNodeIDs(ids)
	return ids
}

// SortNodeIDs orders ids the same way NodeIDs does.
func SortNodeIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return lessNodeID(ids[i], ids[j])
	})
}

func lessNodeID(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}

// Summaries lists nodes with their input names in node id order.
func (g Graph) Summaries() []NodeSummary {
	out := make([]NodeSummary, 0, len(g))
	for _, id := range g.NodeIDs() {
		node := g[id]
		if node == nil {
			continue
		}
		summary := NodeSummary{ID: id, ClassType: node.ClassType, Inputs: make([]string, 0, len(node.Inputs))}
		if node.Meta != nil {
			summary.Title = node.Meta.Title
		}
		for name := range node.Inputs {
			summary.Inputs = append(summary.Inputs, name)
		}
		sort.Strings(summary.Inputs)
		out = append(out, summary)
	}
	return out
}

// Input returns the value of a node input and whether it exists.
func (g Graph) Input(nodeID, field string) (any, bool) {
	node, ok := g[nodeID]
	if !ok || node == nil || node.Inputs == nil {
		return nil, false
	}
	value, ok := node.Inputs[field]
	return value, ok
}
