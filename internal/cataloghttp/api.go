package cataloghttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/chunkd/internal/catalog"
	"github.com/keithlinneman/chunkd/internal/httpmw"
	"github.com/keithlinneman/chunkd/internal/log"
)

// SnapshotSource yields the active catalog snapshot. *catalog.Manager
// satisfies it.
type SnapshotSource interface {
	Get() (*catalog.Snapshot, bool)
}

// API serves read-only catalog status endpoints. Fleet clients poll the
// summary to decide whether their cached route list is current; the full
// endpoint backs dashboards and debugging.
type API struct {
	catalog SnapshotSource
	logger  log.Logger
}

func NewAPI(catalog SnapshotSource, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes mounts the catalog endpoints on r.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(httpmw.Scope("catalog_api"))
		g.Get("/api/catalog", api.HandleCatalog)
		g.Get("/api/catalog/summary", api.HandleCatalogSummary)
	})
}

// CatalogResponse is the full catalog status response.
type CatalogResponse struct {
	Runtime RuntimeInfo `json:"runtime"`

	// Entries lists the client-visible slice of each catalog entry.
	// Source references and inline data stay server-side.
	Entries []EntryInfo `json:"entries,omitempty"`

	// Error is set when no catalog is active.
	Error string `json:"error,omitempty"`
}

// RuntimeInfo reports when and from where the active catalog was loaded.
type RuntimeInfo struct {
	LoadedAt   time.Time      `json:"loaded_at"`
	VerifiedAt time.Time      `json:"verified_at"`
	ServerTime time.Time      `json:"server_time"`
	Source     catalog.Source `json:"source"`
	Hash       string         `json:"hash,omitempty"`
	Version    string         `json:"version,omitempty"`
}

// EntryInfo describes one streamable path.
type EntryInfo struct {
	Path        string `json:"path"`
	Method      string `json:"method,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
}

// CatalogSummaryResponse carries just enough for a client to decide
// whether its cached catalog is current.
type CatalogSummaryResponse struct {
	Version     string    `json:"version"`
	CatalogHash string    `json:"catalog_hash"`
	Source      string    `json:"source"`
	Entries     int       `json:"entries"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// HandleCatalog serves the full catalog status.
func (api *API) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, ok := api.catalog.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, CatalogResponse{
			Runtime: RuntimeInfo{
				ServerTime: time.Now().UTC().Truncate(time.Second),
			},
			Error: "no catalog loaded",
		})
		return
	}

	resp := CatalogResponse{
		Runtime: RuntimeInfo{
			LoadedAt:   snap.LoadedAt.Truncate(time.Second),
			VerifiedAt: snap.Meta.VerifiedAt.Truncate(time.Second),
			ServerTime: time.Now().UTC().Truncate(time.Second),
			Source:     snap.Meta.Source,
			Hash:       snap.Meta.SHA256,
			Version:    snap.Meta.Version,
		},
	}

	if snap.Catalog != nil {
		resp.Entries = make([]EntryInfo, 0, len(snap.Catalog.Entries))
		for _, e := range snap.Catalog.Entries {
			resp.Entries = append(resp.Entries, EntryInfo{
				Path:        e.Path,
				Method:      e.Method,
				ContentType: e.ContentType,
				Encoding:    e.Encoding,
			})
		}
	}

	api.logger.Debug(ctx, "served catalog status",
		"version", snap.Meta.Version,
		"hash", snap.Meta.SHA256,
	)

	api.writeJSON(ctx, w, http.StatusOK, resp)
}

// HandleCatalogSummary serves the polling summary.
func (api *API) HandleCatalogSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, ok := api.catalog.Get()
	if !ok {
		http.Error(w, `{"error":"no catalog loaded"}`, http.StatusServiceUnavailable)
		return
	}

	resp := CatalogSummaryResponse{
		Version:     snap.Meta.Version,
		CatalogHash: snap.Meta.SHA256,
		Source:      string(snap.Meta.Source),
		LoadedAt:    snap.LoadedAt.Truncate(time.Second),
	}
	if snap.Catalog != nil {
		resp.Entries = len(snap.Catalog.Entries)
	}

	api.logger.Debug(ctx, "served catalog summary",
		"version", resp.Version,
	)

	api.writeJSON(ctx, w, http.StatusOK, resp)
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "could not encode catalog response", "error", err)
	}
}
