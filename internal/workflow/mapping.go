package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Module names a page input slot that can be bound to a graph node.
type Module string

const (
	ModulePrompt         Module = "prompt"
	ModuleNegativePrompt Module = "negativePrompt"
	ModuleImageUpload    Module = "imageUpload"
	ModuleModel          Module = "model"
	ModuleAspectRatio    Module = "aspectRatio"
	ModuleBatchSize      Module = "batchSize"
	ModuleTextOutput     Module = "textOutput"
)

// Modules lists every known module in display order.
func Modules() []Module {
	return []Module{
		ModulePrompt,
		ModuleNegativePrompt,
		ModuleImageUpload,
		ModuleModel,
		ModuleAspectRatio,
		ModuleBatchSize,
		ModuleTextOutput,
	}
}

// ParseModule validates a module name.
func ParseModule(value string) (Module, error) {
	trimmed := strings.TrimSpace(value)
	for _, m := range Modules() {
		if string(m) == trimmed {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown module %q", value)
}

// FieldMapping binds a module to a node input. Aspect ratio mappings use the
// width and height pairs instead of NodeID and Field.
type FieldMapping struct {
	NodeID       string `json:"nodeId,omitempty"`
	Field        string `json:"field,omitempty"`
	WidthNodeID  string `json:"widthNodeId,omitempty"`
	WidthField   string `json:"widthField,omitempty"`
	HeightNodeID string `json:"heightNodeId,omitempty"`
	HeightField  string `json:"heightField,omitempty"`
}

// Mappings holds the bindings of one page.
type Mappings map[Module]FieldMapping

// ErrMappingTarget reports a mapping that points at a node or field the graph lacks.
var ErrMappingTarget = errors.New("mapping target not found")

// MappingError describes one unresolved mapping reference.
type MappingError struct {
	Module Module
	NodeID string
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %s -> %s.%s: %s", e.Module, e.NodeID, e.Field, e.Reason)
}

func (e *MappingError) Unwrap() error { return ErrMappingTarget }

type target struct {
	nodeID string
	field  string
}

func (m FieldMapping) targets(module Module) []target {
	if module == ModuleAspectRatio {
		return []target{
			{nodeID: m.WidthNodeID, field: m.WidthField},
			{nodeID: m.HeightNodeID, field: m.HeightField},
		}
	}
	return []target{{nodeID: m.NodeID, field: m.Field}}
}

// IsZero reports whether the mapping binds nothing.
func (m FieldMapping) IsZero() bool {
	return m == FieldMapping{}
}

// ValidateMappings checks each mapping against the graph. A missing node or an
// empty field name is an error; a field not yet present under inputs is
// accepted because injection creates it. Text output mappings only need a node.
func ValidateMappings(graph Graph, mappings Mappings) error {
	var errs []error
	for _, module := range Modules() {
		mapping, ok := mappings[module]
		if !ok || mapping.IsZero() {
			continue
		}
		if module == ModuleTextOutput {
			if _, exists := graph[mapping.NodeID]; !exists {
				errs = append(errs, &MappingError{Module: module, NodeID: mapping.NodeID, Reason: "node not found"})
			}
			continue
		}
		for _, t := range mapping.targets(module) {
			if err := checkTarget(graph, module, t); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func checkTarget(graph Graph, module Module, t target) error {
	if strings.TrimSpace(t.nodeID) == "" {
		return &MappingError{Module: module, Field: t.field, Reason: "node id is empty"}
	}
	if node, ok := graph[t.nodeID]; !ok || node == nil {
		return &MappingError{Module: module, NodeID: t.nodeID, Field: t.field, Reason: "node not found"}
	}
	if strings.TrimSpace(t.field) == "" {
		return &MappingError{Module: module, NodeID: t.nodeID, Reason: "field is empty"}
	}
	return nil
}
