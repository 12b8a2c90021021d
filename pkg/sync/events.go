package sync

import "coordinator/pkg/proto"

// Sealed event set for the repo sync machine.

// TriggerEvent requests a sync run. Webhook deliveries, local push hooks and
// periodic callbacks all funnel into this one event; Reason records which.
type TriggerEvent struct {
	proto.EventMarker
	RepoPath string `json:"repo_path"`
	Reason   string `json:"reason,omitempty"`
}

// Kind implements proto.Event.
func (TriggerEvent) Kind() string { return "SYNC_REQUESTED" }

// SnapshotFetchedEvent carries both sides of the sync: the local work-item
// store and the normalized hosting API snapshot, fetched by FetchEffect.
type SnapshotFetchedEvent struct {
	proto.EventMarker
	Local  proto.ItemSet `json:"local"`
	Remote proto.ItemSet `json:"remote"`
}

// Kind implements proto.Event.
func (SnapshotFetchedEvent) Kind() string { return "SNAPSHOT_FETCHED" }

// RemoteAppliedEvent reports the outcome of pushing local changes to the
// hosting API. Results carries the post-apply items so numbers assigned by
// creates make it back into the local store.
type RemoteAppliedEvent struct {
	proto.EventMarker
	Results []proto.WorkItem `json:"results,omitempty"`
}

// Kind implements proto.Event.
func (RemoteAppliedEvent) Kind() string { return "REMOTE_APPLIED" }

// CommittedEvent reports that the merged item set was written back to the
// local store.
type CommittedEvent struct {
	proto.EventMarker
}

// Kind implements proto.Event.
func (CommittedEvent) Kind() string { return "COMMITTED" }

// SyncFailedEvent reports a failed sync step. Transient failures feed the
// retry schedule; permanent ones go straight to failed.
type SyncFailedEvent struct {
	proto.EventMarker
	Op        string `json:"op"`
	Error     string `json:"error"`
	Transient bool   `json:"transient"`
}

// Kind implements proto.Event.
func (SyncFailedEvent) Kind() string { return "SYNC_FAILED" }

// RetryDueEvent fires when a scheduled retry delay elapses.
type RetryDueEvent struct {
	proto.EventMarker
	Attempt int `json:"attempt"`
}

// Kind implements proto.Event.
func (RetryDueEvent) Kind() string { return "RETRY_DUE" }

// ResolveConflictEvent is the operator's resolution of one parked
// both-sides-changed item. Winner names the side whose version survives.
type ResolveConflictEvent struct {
	proto.EventMarker
	ItemID string              `json:"item_id"`
	Winner proto.SyncDirection `json:"winner"`
	Actor  string              `json:"actor,omitempty"`
}

// Kind implements proto.Event.
func (ResolveConflictEvent) Kind() string { return "RESOLVE_CONFLICT" }

// ApproveSyncEvent is the operator's release of one gate-parked
// local-to-remote action. The next run applies the item past the gate.
type ApproveSyncEvent struct {
	proto.EventMarker
	ItemID string `json:"item_id"`
	Actor  string `json:"actor,omitempty"`
}

// Kind implements proto.Event.
func (ApproveSyncEvent) Kind() string { return "SYNC_APPROVED" }
