package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the project configuration rooted at the given directory,
	// translates it into the format-agnostic model, and applies defaults.
	// A missing configuration file is not an error: the defaults form a
	// complete configuration on their own.
	Load(ctx context.Context, root string) (*Model, error)
}
