package proto

import "time"

// WorkItemKind distinguishes the item types the sync coordinator reconciles.
type WorkItemKind string

const (
	WorkItemIssue WorkItemKind = "issue"
	WorkItemPR    WorkItemKind = "pr"
)

// WorkItem is the normalized unit of reconciliation between the local file
// store and the hosting API. Hash covers the content fields; two items with
// equal hashes are considered unchanged regardless of timestamps.
type WorkItem struct {
	ID        string       `json:"id"`
	Kind      WorkItemKind `json:"kind"`
	Number    int          `json:"number,omitempty"`
	Title     string       `json:"title"`
	Body      string       `json:"body,omitempty"`
	State     string       `json:"state"`
	Labels    []string     `json:"labels,omitempty"`
	Hash      string       `json:"hash"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ItemSet is a snapshot of work items keyed by item id.
type ItemSet map[string]WorkItem

// Clone returns a copy of the set.
func (s ItemSet) Clone() ItemSet {
	out := make(ItemSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
