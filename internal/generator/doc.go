// Package generator turns discovered module descriptors into the derived
// artifacts of a project: the shared runtime module, the flattened RPC
// dispatch surface, one call proxy per container module, and the packaging
// metadata (server entry, manifest, image descriptor).
//
// Every generator is a pure function of (modules, config, project): modules
// arrive sorted by namespace and generators iterate them in that order, so
// a fixed input always produces byte-identical output. That determinism is
// load-bearing — it is what lets the conditional writer skip unchanged
// files and keeps the dev watcher from looping on its own output.
package generator
