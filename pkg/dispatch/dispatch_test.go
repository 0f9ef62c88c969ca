package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMethods() map[string]any {
	return map[string]any{
		"mymodule__F": func(ctx context.Context, name string) (string, error) {
			return "hello " + name, nil
		},
		"mymodule__Add": func(a, b int) (int, error) {
			return a + b, nil
		},
		"mymodule__Fail": func(ctx context.Context) error {
			return errors.New("boom")
		},
	}
}

// backend spins up a real batch endpoint and returns its host:port plus a
// counter of batch requests received.
func backend(t *testing.T, methods map[string]any) (string, *atomic.Int64) {
	t.Helper()
	var batches atomic.Int64
	handler := Handler(methods)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batches.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://"), &batches
}

func TestCallRoundTrip(t *testing.T) {
	addr, _ := backend(t, testMethods())
	client := NewClient()

	results, err := client.Call(context.Background(), addr, "mymodule__F", []any{"world"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	var greeting string
	require.NoError(t, json.Unmarshal(results[0], &greeting))
	assert.Equal(t, "hello world", greeting)
}

func TestCallRemoteError(t *testing.T) {
	addr, _ := backend(t, testMethods())
	client := NewClient()

	_, err := client.Call(context.Background(), addr, "mymodule__Fail", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCallUnknownMethod(t *testing.T) {
	addr, _ := backend(t, testMethods())
	client := NewClient()

	_, err := client.Call(context.Background(), addr, "nope__F", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method")
}

func TestCallsWithinWindowShareOneBatch(t *testing.T) {
	addr, batches := backend(t, testMethods())
	client := NewClient(WithWindow(50 * time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := client.Call(context.Background(), addr, "mymodule__Add", []any{2, 3})
			require.NoError(t, err)
			var sum int
			require.NoError(t, json.Unmarshal(results[0], &sum))
			assert.Equal(t, 5, sum)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), batches.Load(), "calls inside one window must coalesce")
}

func TestCallTransportErrorFailsAllCalls(t *testing.T) {
	client := NewClient(WithWindow(time.Millisecond))

	_, err := client.Call(context.Background(), "127.0.0.1:1", "mymodule__F", []any{"x"})
	require.Error(t, err)
}

func TestCallContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient(WithWindow(time.Hour)) // window never fires

	_, err := client.Call(ctx, "127.0.0.1:1", "mymodule__F", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStaticBackend(t *testing.T) {
	launcher := StaticBackend("127.0.0.1:8787")

	a, err := launcher.Launch(context.Background(), "default")
	require.NoError(t, err)
	b, err := launcher.Launch(context.Background(), "instance-2")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHandlerRejectsNonPost(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(testMethods()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, BatchPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
