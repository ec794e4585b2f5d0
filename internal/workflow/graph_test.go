package workflow_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"magpie/internal/workflow"
)

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `nope`, "invalid workflow graph"},
		{"empty", `{}`, "no nodes"},
		{"editor export", `{"nodes": [], "links": []}`, "API format"},
		{"missing class", `{"1": {"inputs": {}}}`, "class_type"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := workflow.Parse([]byte(tc.raw))
			if !errors.Is(err, workflow.ErrInvalidGraph) {
				t.Fatalf("expected ErrInvalidGraph, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestNodeIDsSortNumerically(t *testing.T) {
	graph := mustParse(t, `{"10": {"class_type":"A"}, "9": {"class_type":"B"}, "2": {"class_type":"C"}, "save": {"class_type":"D"}}`)
	if diff := cmp.Diff([]string{"2", "9", "10", "save"}, graph.NodeIDs()); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestSummariesListInputs(t *testing.T) {
	graph := mustParse(t, txt2img)
	summaries := graph.Summaries()
	if len(summaries) != 7 {
		t.Fatalf("expected 7 summaries, got %d", len(summaries))
	}
	var positive workflow.NodeSummary
	for _, s := range summaries {
		if s.ID == "6" {
			positive = s
		}
	}
	want := workflow.NodeSummary{ID: "6", ClassType: "CLIPTextEncode", Title: "Positive", Inputs: []string{"clip", "text"}}
	if diff := cmp.Diff(want, positive); diff != "" {
		t.Fatalf("unexpected summary (-want +got):\n%s", diff)
	}
}

func TestValidateMappings(t *testing.T) {
	graph := mustParse(t, txt2img)

	ok := workflow.Mappings{
		workflow.ModulePrompt:      {NodeID: "6", Field: "text"},
		workflow.ModuleImageUpload: {NodeID: "9", Field: "image"},
		workflow.ModuleTextOutput:  {NodeID: "9"},
		workflow.ModuleAspectRatio: {WidthNodeID: "5", WidthField: "width", HeightNodeID: "5", HeightField: "height"},
	}
	if err := workflow.ValidateMappings(graph, ok); err != nil {
		t.Fatalf("expected valid mappings, got %v", err)
	}

	bad := workflow.Mappings{
		workflow.ModulePrompt:      {NodeID: "99", Field: "text"},
		workflow.ModuleModel:       {NodeID: "4"},
		workflow.ModuleAspectRatio: {WidthNodeID: "5", WidthField: "width"},
		workflow.ModuleTextOutput:  {NodeID: "77"},
	}
	err := workflow.ValidateMappings(graph, bad)
	if !errors.Is(err, workflow.ErrMappingTarget) {
		t.Fatalf("expected ErrMappingTarget, got %v", err)
	}
	for _, want := range []string{"node not found", "field is empty", "node id is empty", "textOutput"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestParseModule(t *testing.T) {
	if m, err := workflow.ParseModule(" negativePrompt "); err != nil || m != workflow.ModuleNegativePrompt {
		t.Fatalf("unexpected result %q %v", m, err)
	}
	if _, err := workflow.ParseModule("lora"); err == nil {
		t.Fatal("expected unknown module error")
	}
}
