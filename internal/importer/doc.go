// Package importer watches the workflow import directory with fsnotify.
//
// Each *.json file becomes a workflow whose id is derived from the file
// name, so saving the file again replaces the stored graph instead of adding
// a duplicate. Writes are debounced; a file that fails to parse is logged and
// retried on its next write.
package importer
