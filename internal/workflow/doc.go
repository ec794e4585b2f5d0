// Package workflow models API-format node graphs and the page mappings that
// bind studio inputs to node fields.
//
// Templates are immutable: Injector.Inject clones the template, writes the
// mapped values, and replaces seed-like inputs with fresh random integers so
// every submission produces distinct output. Unresolved mapping targets are
// skipped unless strict mappings are enabled; ValidateMappings reports them
// when a page binding is saved.
package workflow
