// Package config defines the format-agnostic project configuration model
// for the orchestrator, along with the Loader interface for reading it from
// various sources.
//
// The `config.Model` is the single source of truth for the discovery,
// generator, and devloop packages. Concrete implementations of the Loader,
// such as for HCL, are provided in separate packages.
package config
