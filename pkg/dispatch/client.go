package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"resty.dev/v3"

	"github.com/vk/crucible/pkg/routing"
)

// DefaultWindow is the batching window: calls to the same backend arriving
// within it travel in one request.
const DefaultWindow = 5 * time.Millisecond

// Client is the batching RPC client generated proxies dispatch through.
// It is safe for concurrent use.
type Client struct {
	http   *resty.Client
	window time.Duration

	mu      sync.Mutex
	pending map[string][]*pendingCall // backend -> accumulating batch
}

type pendingCall struct {
	call BatchCall
	done chan callOutcome
}

type callOutcome struct {
	results []json.RawMessage
	err     error
}

// Option configures a Client.
type Option func(*Client)

// WithWindow overrides the batching window.
func WithWindow(d time.Duration) Option {
	return func(c *Client) { c.window = d }
}

// WithHTTPClient substitutes the underlying resty client, e.g. to shorten
// timeouts in tests.
func WithHTTPClient(hc *resty.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a batching dispatch client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    resty.New().SetTimeout(30 * time.Second),
		window:  DefaultWindow,
		pending: make(map[string][]*pendingCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes a flattened dispatch method on the given backend and blocks
// until the batch it joined has completed. Arguments are JSON-encoded; the
// returned slice holds the method's results still encoded, so generated
// proxies can decode each one into its exact static type.
func (c *Client) Call(ctx context.Context, backend, method string, args []any) ([]json.RawMessage, error) {
	rawArgs := make([]json.RawMessage, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("dispatch %s: encoding argument %d: %w", method, i, err)
		}
		rawArgs[i] = data
	}

	pc := &pendingCall{
		call: BatchCall{ID: uuid.NewString(), Method: method, Args: rawArgs},
		done: make(chan callOutcome, 1),
	}

	c.mu.Lock()
	batch := c.pending[backend]
	c.pending[backend] = append(batch, pc)
	if batch == nil {
		// First call opens the window; the flush fires once per batch.
		time.AfterFunc(c.window, func() { c.flush(backend) })
	}
	c.mu.Unlock()

	select {
	case outcome := <-pc.done:
		return outcome.results, outcome.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flush sends the accumulated batch for one backend and fans results back
// out to the callers by invocation ID.
func (c *Client) flush(backend string) {
	c.mu.Lock()
	batch := c.pending[backend]
	delete(c.pending, backend)
	c.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	calls := make([]BatchCall, len(batch))
	byID := make(map[string]*pendingCall, len(batch))
	for i, pc := range batch {
		calls[i] = pc.call
		byID[pc.call.ID] = pc
	}

	var results []BatchResult
	resp, err := c.http.R().
		SetBody(calls).
		SetResult(&results).
		Post("http://" + backend + BatchPath)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("backend %s returned %s", backend, resp.Status())
	}
	if err != nil {
		for _, pc := range batch {
			pc.done <- callOutcome{err: fmt.Errorf("dispatch batch to %s: %w", backend, err)}
		}
		return
	}

	for _, result := range results {
		pc, ok := byID[result.ID]
		if !ok {
			continue
		}
		delete(byID, result.ID)
		if result.Error != "" {
			pc.done <- callOutcome{err: fmt.Errorf("remote: %s", result.Error)}
		} else {
			pc.done <- callOutcome{results: result.Results}
		}
	}
	// Anything the backend failed to answer still gets an error.
	for _, pc := range byID {
		pc.done <- callOutcome{err: fmt.Errorf("backend %s returned no result for call %s", backend, pc.call.ID)}
	}
}

// StaticBackend returns a Launcher that maps every routing key onto one
// fixed backend address. It is the dev-server default, where a single local
// container process serves all keys.
func StaticBackend(addr string) routing.Launcher {
	return routing.LaunchFunc(func(ctx context.Context, key string) (string, error) {
		return addr, nil
	})
}
