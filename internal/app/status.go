package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusHandler reports the currently discovered module set.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	type exportStatus struct {
		Name string `json:"name"`
		Key  string `json:"key,omitempty"`
	}
	type moduleStatus struct {
		Namespace string         `json:"namespace"`
		Path      string         `json:"path"`
		Exports   []exportStatus `json:"exports"`
	}

	modules := a.scanner.Modules()
	payload := struct {
		Mode    string         `json:"mode"`
		Modules []moduleStatus `json:"modules"`
	}{
		Mode:    a.appConfig.Mode,
		Modules: []moduleStatus{},
	}
	for _, module := range modules {
		ms := moduleStatus{Namespace: module.Namespace, Path: module.RelativePath, Exports: []exportStatus{}}
		for _, export := range module.Exports {
			es := exportStatus{Name: export.Name}
			if export.Key.Literal != "" {
				es.Key = export.Key.Literal
			} else if export.Key.FuncName != "" {
				es.Key = export.Key.FuncName
			}
			ms.Exports = append(ms.Exports, es)
		}
		payload.Modules = append(payload.Modules, ms)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("Status encoding failed.", "error", err)
	}
}

// statusServer runs the status HTTP endpoints until the context ends. It
// returns nil when the port is disabled.
func (a *App) statusServer(ctx context.Context) error {
	if a.appConfig.StatusPort <= 0 {
		a.logger.Debug("Status server not started: disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthHandler)
	mux.HandleFunc("/statusz", a.statusHandler)

	addr := fmt.Sprintf(":%d", a.appConfig.StatusPort)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Status server starting.", "address", fmt.Sprintf("http://localhost%s/healthz", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Status server shutdown failed.", "error", err)
			return err
		}
		a.logger.Debug("Status server shut down gracefully.")
		return nil
	}
}
