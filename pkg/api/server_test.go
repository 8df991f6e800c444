package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sddcinfo/provisioning-server/pkg/boot"
	"github.com/sddcinfo/provisioning-server/pkg/config"
	"github.com/sddcinfo/provisioning-server/pkg/store"
	"github.com/sddcinfo/provisioning-server/pkg/types"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	dir := t.TempDir()
	templateDir := filepath.Join(dir, "templates", "default")
	require.NoError(t, os.MkdirAll(templateDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "user-data"), []byte("#cloud-config\nhostname: node-${MAC}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "meta-data"), []byte("instance-id: iid\n"), 0644))

	s, err := store.NewBoltStore(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{ListenAddr: ":0"}
	preparer := boot.NewSessionPreparer(filepath.Join(dir, "templates"), filepath.Join(dir, "sessions"))
	engine := boot.NewEngine(s, preparer, boot.ScriptConfig{
		KernelURL:      "http://srv/vmlinuz",
		InitrdURL:      "http://srv/initrd",
		SessionBaseURL: "http://srv/sessions",
	})
	return NewServer(cfg, s, engine), s
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestBootActionReturnsInstallScript(t *testing.T) {
	srv, s := newTestServer(t)

	rec := get(t, srv, "/?action=boot&mac=AA:BB:CC:DD:EE:01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "#!ipxe"))
	assert.Contains(t, rec.Body.String(), "http://srv/vmlinuz")
	assert.Contains(t, rec.Body.String(), "aa:bb:cc:dd:ee:01")

	node, err := s.GetNode("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInstalling, node.Status)
}

func TestBootActionLocalDiskForDoneNode(t *testing.T) {
	srv, s := newTestServer(t)
	_, err := s.UpdateNode("aa:bb:cc:dd:ee:01", func(r *types.NodeRecord) error {
		r.Status = types.StatusDone
		return nil
	})
	require.NoError(t, err)

	rec := get(t, srv, "/?action=boot&mac=aa:bb:cc:dd:ee:01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sanboot")
}

func TestBareMACDefaultsToBoot(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/?mac=aa:bb:cc:dd:ee:01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "#!ipxe"))
}

func TestBootActionRejectsBadMAC(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/?action=boot&mac=not-a-mac")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackUpdatesStatus(t *testing.T) {
	srv, s := newTestServer(t)
	// The node was booted into the installer first.
	get(t, srv, "/?action=boot&mac=aa:bb:cc:dd:ee:01")

	rec := get(t, srv, "/?action=callback&mac=aa:bb:cc:dd:ee:01&status=done")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "OK: aa:bb:cc:dd:ee:01 DONE")

	node, err := s.GetNode("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, node.Status)
}

func TestCallbackRejectsUnknownStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/?action=callback&mac=aa:bb:cc:dd:ee:01&status=EXPLODED")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReprovisionActionResetsAndRedirects(t *testing.T) {
	srv, s := newTestServer(t)
	_, err := s.UpdateNode("aa:bb:cc:dd:ee:01", func(r *types.NodeRecord) error {
		r.Status = types.StatusDone
		return nil
	})
	require.NoError(t, err)

	rec := get(t, srv, "/?action=reprovision&mac=aa:bb:cc:dd:ee:01")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?action=status", rec.Header().Get("Location"))

	node, err := s.GetNode("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, types.StatusNew, node.Status, "next PXE boot reinstalls")
}

func TestDeleteActionRemovesRecord(t *testing.T) {
	srv, s := newTestServer(t)
	_, err := s.UpdateNode("aa:bb:cc:dd:ee:01", func(r *types.NodeRecord) error {
		r.Status = types.StatusDone
		return nil
	})
	require.NoError(t, err)

	rec := get(t, srv, "/?action=delete&mac=aa:bb:cc:dd:ee:01")
	require.Equal(t, http.StatusSeeOther, rec.Code)

	_, err = s.GetNode("aa:bb:cc:dd:ee:01")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStatusPageListsNodes(t *testing.T) {
	srv, s := newTestServer(t)
	_, err := s.UpdateNode("aa:bb:cc:dd:ee:01", func(r *types.NodeRecord) error {
		r.Status = types.StatusDone
		r.Hostname = "node1"
		return nil
	})
	require.NoError(t, err)

	rec := get(t, srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "aa:bb:cc:dd:ee:01")
	assert.Contains(t, rec.Body.String(), "node1")
	assert.Contains(t, rec.Body.String(), "DONE")
}

func TestUnknownActionRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/?action=frobnicate")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "provision_")
}
