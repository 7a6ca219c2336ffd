// ABOUTME: Admin HTTP handlers for the toolweave backend.
// ABOUTME: Exposes health, identity listing, workspace info, and the reset operation.

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/toolweave/toolweave/internal/store"
)

// IdentityResponse is the JSON shape for GET /admin/identities.
type IdentityResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Hostname    string `json:"hostname,omitempty"`
	HostIP      string `json:"hostIP,omitempty"`
	ProcessID   string `json:"pid,omitempty"`
	LastSeenAt  string `json:"lastSeenAt"`
	Alive       bool   `json:"alive"`
}

// WorkspaceResponse is the JSON shape for workspace payloads.
type WorkspaceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	CreatedAt string `json:"createdAt"`
}

// ResetRequest is the JSON request body for POST /admin/reset.
type ResetRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResetResponse is the JSON response for POST /admin/reset.
type ResetResponse struct {
	Workspace WorkspaceResponse `json:"workspace"`
}

// adminMux builds the admin HTTP routing table.
func (b *Backend) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", b.handleHealth)
	mux.HandleFunc("/readyz", b.handleReady)
	mux.HandleFunc("/admin/identities", b.handleListIdentities)
	mux.HandleFunc("/admin/workspace", b.handleDefaultWorkspace)
	mux.HandleFunc("/admin/reset", b.handleReset)
	return mux
}

// handleHealth returns 200 OK if the server is alive.
func (b *Backend) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the default workspace exists, meaning
// connections have somewhere to land.
func (b *Backend) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := b.store.DefaultWorkspace(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no default workspace"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleListIdentities handles GET /admin/identities.
// Supports optional ?workspace=X; defaults to the current default workspace.
// Each record carries its live heartbeat state.
func (b *Backend) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	workspaceID := r.URL.Query().Get("workspace")
	if workspaceID == "" {
		ws, err := b.store.DefaultWorkspace(r.Context())
		if err != nil {
			http.Error(w, "no default workspace", http.StatusServiceUnavailable)
			return
		}
		workspaceID = ws.ID
	}

	identities, err := b.store.ListIdentities(r.Context(), workspaceID)
	if err != nil {
		http.Error(w, fmt.Sprintf("listing identities: %v", err), http.StatusInternalServerError)
		return
	}

	response := make([]IdentityResponse, 0, len(identities))
	for _, ident := range identities {
		alive, err := b.monitor.Alive(r.Context(), ident.ID)
		if err != nil {
			b.logger.Warn("checking liveness", "identity_id", ident.ID, "error", err)
		}
		response = append(response, IdentityResponse{
			ID:          ident.ID,
			Name:        ident.Name,
			WorkspaceID: ident.WorkspaceID,
			Kind:        ident.Kind,
			Status:      string(ident.Status),
			Hostname:    ident.Hostname,
			HostIP:      ident.HostIP,
			ProcessID:   ident.ProcessID,
			LastSeenAt:  ident.LastSeenAt.UTC().Format(time.RFC3339),
			Alive:       alive,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleDefaultWorkspace handles GET /admin/workspace.
func (b *Backend) handleDefaultWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ws, err := b.store.DefaultWorkspace(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "no default workspace", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("looking up workspace: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(workspaceResponse(ws))
}

// handleReset handles POST /admin/reset. The reset cannot be undone.
func (b *Backend) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ResetRequest
	if r.Body != nil {
		// An empty body is fine; the reason is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "admin request"
	}

	ws, err := b.reset.Reset(r.Context(), req.Reason)
	if err != nil {
		http.Error(w, fmt.Sprintf("reset failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ResetResponse{Workspace: workspaceResponse(ws)})
}

func workspaceResponse(ws *store.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		IsDefault: ws.IsDefault,
		CreatedAt: ws.CreatedAt.UTC().Format(time.RFC3339),
	}
}
