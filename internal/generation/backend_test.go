package generation_test

import (
	"errors"
	"testing"

	"magpie/internal/catalog"
	"magpie/internal/generation"
	"magpie/internal/services"
)

func TestSelectBackendRequiresUsableServer(t *testing.T) {
	backends := []catalog.Backend{
		{ID: "a", Name: "A", URL: "", Enabled: true},
		{ID: "b", Name: "B", URL: "http://gpu-b:8188", Enabled: false},
	}
	_, err := generation.SelectBackend(backends, "", nil)
	if !errors.Is(err, generation.ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func TestSelectBackendFiltersDepartments(t *testing.T) {
	backends := []catalog.Backend{
		{ID: "design", Name: "Design", URL: "http://gpu-d:8188/", Enabled: true, AllowedDepartments: []string{"设计部"}},
		{ID: "shared", Name: "Shared", URL: "http://gpu-s:8188", Enabled: true},
	}

	eligible := generation.Eligible(backends, "市场部")
	if len(eligible) != 1 || eligible[0].ID != "shared" {
		t.Fatalf("unexpected eligible set: %+v", eligible)
	}

	first := func(int) int { return 0 }
	chosen, err := generation.SelectBackend(backends, "设计部", first)
	if err != nil {
		t.Fatalf("SelectBackend failed: %v", err)
	}
	if chosen.ID != "design" || chosen.URL != "http://gpu-d:8188" {
		t.Fatalf("unexpected backend: %+v", chosen)
	}

	counts := map[string]int{}
	for i := range 4 {
		pick := func(n int) int { return i % n }
		b, err := generation.SelectBackend(backends, "设计部", pick)
		if err != nil {
			t.Fatalf("SelectBackend failed: %v", err)
		}
		counts[b.ID]++
	}
	if counts["design"] != 2 || counts["shared"] != 2 {
		t.Fatalf("expected selection to follow the random source, got %v", counts)
	}
}
