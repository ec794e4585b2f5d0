package workflow

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
)

// MaxSeed bounds randomized seeds; values fall in [0, MaxSeed).
const MaxSeed int64 = 1_000_000_000_000_000

// DefaultSeedKeys are the input names treated as sampler seeds.
var DefaultSeedKeys = []string{"seed", "noise_seed", "seed_int"}

// Values are the user-supplied inputs for one submission. Zero values are
// not injected, so the template default stays in place.
type Values struct {
	Prompt         string `json:"prompt,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model,omitempty"`
	BatchSize      int    `json:"batch_size,omitempty"`
	UploadedImage  string `json:"uploaded_image,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// Injector merges values into a copy of a template graph.
type Injector struct {
	seedKeys map[string]struct{}
	strict   bool
	seed     func() int64
}

// InjectorOption customizes an Injector.
type InjectorOption func(*Injector)

// WithSeedSource replaces the random seed generator.
func WithSeedSource(fn func() int64) InjectorOption {
	return func(i *Injector) {
		if fn != nil {
			i.seed = fn
		}
	}
}

// WithStrictMappings makes unresolved mapping targets fail injection.
func WithStrictMappings(strict bool) InjectorOption {
	return func(i *Injector) {
		i.strict = strict
	}
}

// NewInjector builds an injector for the given seed keys; empty keys fall back to DefaultSeedKeys.
func NewInjector(seedKeys []string, opts ...InjectorOption) *Injector {
	if len(seedKeys) == 0 {
		seedKeys = DefaultSeedKeys
	}
	inj := &Injector{
		seedKeys: make(map[string]struct{}, len(seedKeys)),
		seed:     func() int64 { return rand.Int64N(MaxSeed) },
	}
	for _, key := range seedKeys {
		inj.seedKeys[key] = struct{}{}
	}
	for _, opt := range opts {
		opt(inj)
	}
	return inj
}

// Inject returns a populated copy of template. Only modules present in
// enabled are applied; a nil enabled set applies every mapped module. The
// template itself is never modified. A mapping to an existing node whose
// field is missing from inputs creates that field; only a missing node is
// skipped (or rejected in strict mode).
func (i *Injector) Inject(template Graph, mappings Mappings, values Values, enabled map[Module]bool) (Graph, error) {
	graph, err := template.Clone()
	if err != nil {
		return nil, err
	}

	var errs []error
	apply := func(module Module, t target, value any) {
		if err := setInput(graph, module, t); err != nil {
			if i.strict {
				errs = append(errs, err)
			}
			return
		}
		graph[t.nodeID].Inputs[t.field] = value
	}

	for _, module := range Modules() {
		mapping, ok := mappings[module]
		if !ok || mapping.IsZero() {
			continue
		}
		if enabled != nil && !enabled[module] {
			continue
		}
		switch module {
		case ModulePrompt:
			if values.Prompt != "" {
				apply(module, target{mapping.NodeID, mapping.Field}, values.Prompt)
			}
		case ModuleNegativePrompt:
			if values.NegativePrompt != "" {
				apply(module, target{mapping.NodeID, mapping.Field}, values.NegativePrompt)
			}
		case ModuleModel:
			if values.Model != "" {
				apply(module, target{mapping.NodeID, mapping.Field}, values.Model)
			}
		case ModuleBatchSize:
			if values.BatchSize > 0 {
				apply(module, target{mapping.NodeID, mapping.Field}, values.BatchSize)
			}
		case ModuleImageUpload:
			if values.UploadedImage != "" {
				apply(module, target{mapping.NodeID, mapping.Field}, values.UploadedImage)
			}
		case ModuleAspectRatio:
			if values.Width > 0 {
				apply(module, target{mapping.WidthNodeID, mapping.WidthField}, values.Width)
			}
			if values.Height > 0 {
				apply(module, target{mapping.HeightNodeID, mapping.HeightField}, values.Height)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	i.randomizeSeeds(graph)
	return graph, nil
}

func setInput(graph Graph, module Module, t target) error {
	if err := checkTarget(graph, module, t); err != nil {
		return err
	}
	node := graph[t.nodeID]
	if node.Inputs == nil {
		node.Inputs = make(map[string]any)
	}
	return nil
}

func (i *Injector) randomizeSeeds(graph Graph) {
	for _, node := range graph {
		if node == nil {
			continue
		}
		for key, value := range node.Inputs {
			if _, ok := i.seedKeys[key]; !ok {
				continue
			}
			if isSeedValue(value) {
				node.Inputs[key] = i.seed()
			}
		}
	}
}

// isSeedValue reports whether value is a literal number or an all-digit
// string. Links (arrays) and other strings are not seeds.
func isSeedValue(value any) bool {
	switch v := value.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	case string:
		if v == "" {
			return false
		}
		for _, r := range v {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	default:
		return false
	}
}
