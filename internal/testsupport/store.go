package testsupport

import (
	"context"
	"testing"

	"magpie/internal/catalog"
	"magpie/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SampleGraph is a minimal text-to-image workflow in API format.
const SampleGraph = `{
  "3": {"class_type": "KSampler", "inputs": {"seed": 5, "steps": 20, "model": ["4", 0], "positive": ["6", 0], "negative": ["7", 0], "latent_image": ["5", 0]}},
  "4": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "base.safetensors"}},
  "5": {"class_type": "EmptyLatentImage", "inputs": {"width": 512, "height": 512, "batch_size": 1}},
  "6": {"class_type": "CLIPTextEncode", "inputs": {"text": "a cat", "clip": ["4", 1]}},
  "7": {"class_type": "CLIPTextEncode", "inputs": {"text": "", "clip": ["4", 1]}},
  "9": {"class_type": "SaveImage", "inputs": {"filename_prefix": "magpie", "images": ["8", 0]}}
}`

// MustSaveWorkflow imports SampleGraph under id.
func MustSaveWorkflow(t testing.TB, store *catalog.Store, id string) catalog.Workflow {
	t.Helper()

	wf, err := store.SaveWorkflow(context.Background(), catalog.WorkflowInput{
		ID:    id,
		Name:  "Sample " + id,
		Graph: []byte(SampleGraph),
	})
	if err != nil {
		t.Fatalf("store.SaveWorkflow: %v", err)
	}
	return wf
}
