package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Serve runs the batch endpoint for a container backend. methods maps
// flattened dispatch names to function values, as produced by the generated
// dispatch surface's Methods().
func Serve(addr string, methods map[string]any) error {
	mux := http.NewServeMux()
	mux.Handle(BatchPath, Handler(methods))
	return http.ListenAndServe(addr, mux)
}

// Handler returns the http.Handler executing batched calls against the
// given method table.
func Handler(methods map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var calls []BatchCall
		if err := json.NewDecoder(r.Body).Decode(&calls); err != nil {
			http.Error(w, fmt.Sprintf("malformed batch: %v", err), http.StatusBadRequest)
			return
		}

		results := make([]BatchResult, len(calls))
		for i, call := range calls {
			results[i] = execute(r.Context(), methods, call)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
	})
}

// execute runs one call reflectively. A call failure never fails the batch:
// each invocation carries its own error channel back to its caller.
func execute(ctx context.Context, methods map[string]any, call BatchCall) BatchResult {
	fn, ok := methods[call.Method]
	if !ok {
		return BatchResult{ID: call.ID, Error: fmt.Sprintf("unknown method %q", call.Method)}
	}

	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return BatchResult{ID: call.ID, Error: fmt.Sprintf("method %q is not callable", call.Method)}
	}

	in := make([]reflect.Value, 0, ft.NumIn())
	argIdx := 0
	for i := 0; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		if i == 0 && pt == contextType {
			in = append(in, reflect.ValueOf(ctx))
			continue
		}
		if argIdx >= len(call.Args) {
			return BatchResult{ID: call.ID, Error: fmt.Sprintf("method %q expects %d arguments, got %d", call.Method, ft.NumIn(), len(call.Args))}
		}
		target := reflect.New(pt)
		if err := json.Unmarshal(call.Args[argIdx], target.Interface()); err != nil {
			return BatchResult{ID: call.ID, Error: fmt.Sprintf("argument %d: %v", argIdx, err)}
		}
		in = append(in, target.Elem())
		argIdx++
	}
	if argIdx != len(call.Args) {
		return BatchResult{ID: call.ID, Error: fmt.Sprintf("method %q got %d extra arguments", call.Method, len(call.Args)-argIdx)}
	}

	out := fv.Call(in)

	result := BatchResult{ID: call.ID}
	for i, v := range out {
		if i == len(out)-1 && ft.Out(i) == errorType {
			if !v.IsNil() {
				return BatchResult{ID: call.ID, Error: v.Interface().(error).Error()}
			}
			continue
		}
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return BatchResult{ID: call.ID, Error: fmt.Sprintf("encoding result %d: %v", i, err)}
		}
		result.Results = append(result.Results, data)
	}
	return result
}
