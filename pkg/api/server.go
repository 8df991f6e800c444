package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/sddcinfo/provisioning-server/pkg/boot"
	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/log"
	"github.com/sddcinfo/provisioning-server/pkg/metrics"
	"github.com/sddcinfo/provisioning-server/pkg/store"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// Server is the HTTP surface: boot scripts for iPXE clients, install
// callbacks from nodes, and the operator status page. All node-facing
// endpoints hang off "/" and dispatch on the action query parameter, so
// firmware with primitive HTTP support only needs one URL.
type Server struct {
	cfg    *config.Config
	store  store.Store
	engine *boot.Engine
	http   *http.Server
}

// NewServer wires the HTTP surface.
func NewServer(cfg *config.Config, s store.Store, engine *boot.Engine) *Server {
	srv := &Server{
		cfg:    cfg,
		store:  s,
		engine: engine,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.dispatch)
	mux.HandleFunc("/health", srv.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	srv.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logger := log.WithComponent("api")
	logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// dispatch routes "/" requests by their action parameter.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	// A bare mac parameter is a boot request: iPXE chainload URLs are
	// kept as short as firmware allows.
	action := r.URL.Query().Get("action")
	if action == "" {
		if r.URL.Query().Get("mac") != "" {
			action = "boot"
		} else {
			action = "status"
		}
	}

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	timer := metrics.NewTimer()

	switch action {
	case "boot":
		s.handleBoot(sw, r)
	case "callback":
		s.handleCallback(sw, r)
	case "reprovision":
		s.handleReprovision(sw, r)
	case "delete":
		s.handleDelete(sw, r)
	case "status":
		s.handleStatus(sw, r)
	default:
		http.Error(sw, fmt.Sprintf("unknown action %q", action), http.StatusBadRequest)
	}

	timer.ObserveDuration(metrics.APIRequestDuration.WithLabelValues(action))
	metrics.APIRequestsTotal.WithLabelValues(action, fmt.Sprintf("%d", sw.status)).Inc()
}

// handleBoot answers an iPXE chainload with the node's boot script.
func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	mac := r.URL.Query().Get("mac")
	script, decision, err := s.engine.Decide(mac)
	if err != nil {
		if errors.Is(err, types.ErrInvalidKey) {
			metrics.BootRequestsTotal.WithLabelValues("invalid").Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger := log.WithComponent("api")
		logger.Error().Err(err).Str("mac", mac).Msg("boot decision failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	metrics.BootRequestsTotal.WithLabelValues(string(decision)).Inc()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, script)
}

// handleCallback records an install status reported by the node itself,
// typically DONE from the installer's late_commands.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	mac := r.URL.Query().Get("mac")
	status := types.InstallStatus(strings.ToUpper(r.URL.Query().Get("status")))

	key, err := types.NormalizeKey(mac)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !types.ValidInstallStatus(status) {
		http.Error(w, fmt.Sprintf("invalid status %q", status), http.StatusBadRequest)
		return
	}
	logger := log.WithNode(key)

	if _, err := s.store.UpdateNode(key, func(rec *types.NodeRecord) error {
		rec.Status = status
		return nil
	}); err != nil {
		logger.Error().Err(err).Msg("callback update failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.CallbacksTotal.WithLabelValues(string(status)).Inc()
	logger.Info().Str("status", string(status)).Msg("install callback")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "OK: %s %s\n", key, status)
}

// handleReprovision resets one node's install state so its next PXE boot
// reinstalls. It does not reboot anything; that is the CLI's job.
func (s *Server) handleReprovision(w http.ResponseWriter, r *http.Request) {
	key, err := types.NormalizeKey(r.URL.Query().Get("mac"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger := log.WithNode(key)
	if _, err := s.store.UpdateNode(key, func(rec *types.NodeRecord) error {
		rec.Status = types.StatusNew
		return nil
	}); err != nil {
		logger.Error().Err(err).Msg("reprovision reset failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Info().Msg("install state reset via api")
	http.Redirect(w, r, "/?action=status", http.StatusSeeOther)
}

// handleDelete removes a node record entirely.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := types.NormalizeKey(r.URL.Query().Get("mac"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger := log.WithNode(key)
	if err := s.store.DeleteNode(key); err != nil {
		logger.Error().Err(err).Msg("delete failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Info().Msg("node record deleted via api")
	http.Redirect(w, r, "/?action=status", http.StatusSeeOther)
}

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>Provisioning Status</title></head>
<body>
<h1>Fleet Status</h1>
<table border="1" cellpadding="4">
<tr><th>Key</th><th>Hostname</th><th>Install</th><th>Reprovision</th><th>Role</th><th>Last Update</th><th></th></tr>
{{range .}}
<tr>
<td>{{.Key}}</td>
<td>{{.Hostname}}</td>
<td>{{.Status}}</td>
<td>{{.ReprovisionStatus}}</td>
<td>{{.ClusterRole}}</td>
<td>{{.LastUpdate.Format "2006-01-02 15:04:05"}}</td>
<td><a href="/?action=reprovision&mac={{.Key}}">reprovision</a> <a href="/?action=delete&mac={{.Key}}">delete</a></td>
</tr>
{{end}}
</table>
</body>
</html>
`))

// handleStatus renders the operator-facing fleet table.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponent("api")
	nodes, err := s.store.ListNodes()
	if err != nil {
		logger.Error().Err(err).Msg("status listing failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, nodes); err != nil {
		logger.Error().Err(err).Msg("status render failed")
	}
}

// handleHealth reports liveness plus a store round-trip.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := s.store.ListNodes(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(health{Status: "degraded", Error: err.Error()})
		return
	}
	json.NewEncoder(w).Encode(health{Status: "ok"})
}

// statusWriter captures the response code for request metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
