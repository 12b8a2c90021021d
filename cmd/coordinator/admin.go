package main

import (
	"encoding/json"
	"net/http"
	"time"

	"coordinator/pkg/actor"
	"coordinator/pkg/metrics"
	"coordinator/pkg/persistence"
	"coordinator/pkg/proto"
	"coordinator/pkg/review"
	syncmachine "coordinator/pkg/sync"
)

// registerAdmin mounts the operator endpoints: manual sync triggers,
// conflict resolution and terminal-state resets. These post the same events
// the webhook path does; the machines treat operators and webhooks alike.
func registerAdmin(mux *http.ServeMux, rt *actor.Runtime) {
	mux.HandleFunc("/admin/sync/trigger", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Repo   string `json:"repo"`
			Reason string `json:"reason,omitempty"`
		}
		if !decodeAdmin(w, r, &req) {
			return
		}
		if req.Repo == "" {
			http.Error(w, "repo is required", http.StatusBadRequest)
			return
		}
		if req.Reason == "" {
			req.Reason = "manual"
		}
		rt.Post(proto.RepoKeyFromPath(req.Repo), syncmachine.TriggerEvent{
			RepoPath: req.Repo,
			Reason:   req.Reason,
		})
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/admin/sync/resolve", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Repo   string `json:"repo"`
			ItemID string `json:"item_id"`
			Winner string `json:"winner"`
			Actor  string `json:"actor,omitempty"`
		}
		if !decodeAdmin(w, r, &req) {
			return
		}
		if req.Repo == "" || req.ItemID == "" {
			http.Error(w, "repo and item_id are required", http.StatusBadRequest)
			return
		}
		winner := proto.SyncDirection(req.Winner)
		if winner != proto.SyncLocalToRemote && winner != proto.SyncRemoteToLocal {
			http.Error(w, "winner must be local_to_remote or remote_to_local", http.StatusBadRequest)
			return
		}
		rt.Post(proto.RepoKeyFromPath(req.Repo), syncmachine.ResolveConflictEvent{
			ItemID: req.ItemID,
			Winner: winner,
			Actor:  req.Actor,
		})
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/admin/sync/approve", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Repo   string `json:"repo"`
			ItemID string `json:"item_id"`
			Actor  string `json:"actor"`
		}
		if !decodeAdmin(w, r, &req) {
			return
		}
		if req.Repo == "" || req.ItemID == "" || req.Actor == "" {
			http.Error(w, "repo, item_id and actor are required", http.StatusBadRequest)
			return
		}
		rt.Post(proto.RepoKeyFromPath(req.Repo), syncmachine.ApproveSyncEvent{
			ItemID: req.ItemID,
			Actor:  req.Actor,
		})
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/admin/review/close", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Repo     string `json:"repo"`
			PRNumber int    `json:"pr_number"`
			Merge    bool   `json:"merge"`
			Actor    string `json:"actor"`
		}
		if !decodeAdmin(w, r, &req) {
			return
		}
		if req.Repo == "" || req.PRNumber == 0 || req.Actor == "" {
			http.Error(w, "repo, pr_number and actor are required", http.StatusBadRequest)
			return
		}
		rt.Post(proto.PRKeyFromPath(req.Repo, req.PRNumber), review.CloseEvent{
			Merged: req.Merge,
			Actor:  req.Actor,
		})
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/admin/reset", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key      string `json:"key"`
			Operator string `json:"operator"`
			Reason   string `json:"reason,omitempty"`
		}
		if !decodeAdmin(w, r, &req) {
			return
		}
		key := proto.EntityKey(req.Key)
		if !key.Valid() {
			http.Error(w, "key must be a valid entity key, e.g. pr:acme/widgets#42", http.StatusBadRequest)
			return
		}
		if req.Operator == "" {
			http.Error(w, "operator is required", http.StatusBadRequest)
			return
		}
		rt.Post(key, proto.ResetEvent{Operator: req.Operator, Reason: req.Reason})
		w.WriteHeader(http.StatusAccepted)
	})
}

// handleSyncJournal lists a repo's journaled sync actions by status, for
// operators chasing what the sync coordinator did and when.
func handleSyncJournal(store *persistence.SyncEventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		repo := r.URL.Query().Get("repo")
		if repo == "" {
			http.Error(w, "repo query parameter is required", http.StatusBadRequest)
			return
		}
		status := proto.SyncStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = proto.SyncFailed
		}
		events, err := store.ListByStatus(repo, status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"events": events})
	}
}

// handleEntityStats serves aggregated dispatch health for one entity type,
// queried from the Prometheus server scraping this process. A nil service
// means no Prometheus URL is configured.
func handleEntityStats(q *metrics.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if q == nil {
			http.Error(w, "no prometheus_url configured", http.StatusServiceUnavailable)
			return
		}
		entity := r.URL.Query().Get("entity")
		if entity == "" {
			entity = string(proto.EntityPR)
		}
		window := time.Hour
		if s := r.URL.Query().Get("window"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				http.Error(w, "invalid window duration", http.StatusBadRequest)
				return
			}
			window = d
		}
		stats, err := q.GetEntityStats(r.Context(), entity, window)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	}
}

func decodeAdmin(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}
