package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"coordinator/pkg/proto"
)

// ActionKind classifies one reconciliation step.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionClose  ActionKind = "close"
)

// Action is one reconciliation step computed by Classify. Direction says
// which side the action mutates.
type Action struct {
	Kind      ActionKind          `json:"kind"`
	Direction proto.SyncDirection `json:"direction"`
	Item      proto.WorkItem      `json:"item"`
}

// Conflict is an item that changed on both sides since the last synced
// snapshot. The zero side with Present false means the item was removed on
// that side.
type Conflict struct {
	ItemID        string         `json:"item_id"`
	Local         proto.WorkItem `json:"local"`
	Remote        proto.WorkItem `json:"remote"`
	LocalPresent  bool           `json:"local_present"`
	RemotePresent bool           `json:"remote_present"`
}

// Diff is the full reconciliation plan for one sync run.
type Diff struct {
	ToRemote  []Action   `json:"to_remote,omitempty"`
	ToLocal   []Action   `json:"to_local,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Empty reports whether the diff requires no work at all.
func (d Diff) Empty() bool {
	return len(d.ToRemote) == 0 && len(d.ToLocal) == 0 && len(d.Conflicts) == 0
}

// Classify computes the three-way diff between the last synced snapshot
// (base) and the current local and remote snapshots. It is pure and
// deterministic: items are visited in sorted id order, and identical
// snapshots produce an empty diff. A side counts as changed when the item
// appeared, disappeared, or its content hash differs from base.
func Classify(base, local, remote proto.ItemSet) Diff {
	ids := make(map[string]struct{}, len(base)+len(local)+len(remote))
	for id := range base {
		ids[id] = struct{}{}
	}
	for id := range local {
		ids[id] = struct{}{}
	}
	for id := range remote {
		ids[id] = struct{}{}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var d Diff
	for _, id := range sorted {
		b, hasB := base[id]
		l, hasL := local[id]
		r, hasR := remote[id]

		localChanged := sideChanged(b, hasB, l, hasL)
		remoteChanged := sideChanged(b, hasB, r, hasR)

		switch {
		case !localChanged && !remoteChanged:
			// no-op

		case localChanged && remoteChanged:
			if hasL && hasR && l.Hash == r.Hash {
				// Both sides converged on the same content independently.
				continue
			}
			d.Conflicts = append(d.Conflicts, Conflict{
				ItemID:        id,
				Local:         l,
				Remote:        r,
				LocalPresent:  hasL,
				RemotePresent: hasR,
			})

		case localChanged:
			d.ToRemote = append(d.ToRemote, action(proto.SyncLocalToRemote, b, hasB, l, hasL))

		default:
			d.ToLocal = append(d.ToLocal, action(proto.SyncRemoteToLocal, b, hasB, r, hasR))
		}
	}
	return d
}

func sideChanged(base proto.WorkItem, hasBase bool, cur proto.WorkItem, hasCur bool) bool {
	if hasBase != hasCur {
		return true
	}
	if !hasCur {
		return false
	}
	return base.Hash != cur.Hash
}

// action builds the step for a side that changed alone. A disappeared item
// becomes a close of the base version; everything else carries the changed
// side's item.
func action(dir proto.SyncDirection, base proto.WorkItem, hasBase bool, cur proto.WorkItem, hasCur bool) Action {
	if !hasCur {
		closed := base
		closed.State = "closed"
		return Action{Kind: ActionClose, Direction: dir, Item: closed}
	}
	if !hasBase {
		return Action{Kind: ActionCreate, Direction: dir, Item: cur}
	}
	if cur.State == "closed" && base.State != "closed" {
		return Action{Kind: ActionClose, Direction: dir, Item: cur}
	}
	return Action{Kind: ActionUpdate, Direction: dir, Item: cur}
}

// HashItem computes the content hash the diff compares. Timestamps and the
// assigned number are excluded so a round-trip through the hosting API does
// not read as a change.
func HashItem(w proto.WorkItem) string {
	labels := append([]string(nil), w.Labels...)
	sort.Strings(labels)
	h := sha256.New()
	for _, part := range []string{string(w.Kind), w.Title, w.Body, w.State, strings.Join(labels, ",")} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
