// Package dispatch carries calls from generated proxies to a container
// backend and executes them there. Calls made within a short window against
// the same backend coalesce into one batched HTTP request; the wire shape
// of a batch is this package's whole contract, the encoding itself is
// deliberately plain JSON.
package dispatch

import "encoding/json"

// BatchPath is the HTTP path every container backend serves batches on.
const BatchPath = "/__crucible/batch"

// BatchCall is one invocation inside a batch request.
type BatchCall struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// BatchResult is the outcome of one invocation inside a batch response.
// Results and Error are mutually exclusive.
type BatchResult struct {
	ID      string            `json:"id"`
	Results []json.RawMessage `json:"results,omitempty"`
	Error   string            `json:"error,omitempty"`
}
