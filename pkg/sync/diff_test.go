package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordinator/pkg/proto"
)

func item(id, title, state string) proto.WorkItem {
	w := proto.WorkItem{ID: id, Kind: proto.WorkItemIssue, Title: title, Body: "body of " + id, State: state}
	w.Hash = HashItem(w)
	return w
}

func set(items ...proto.WorkItem) proto.ItemSet {
	s := proto.ItemSet{}
	for _, it := range items {
		s[it.ID] = it
	}
	return s
}

func TestClassifyIdenticalSnapshotsIsEmpty(t *testing.T) {
	base := set(item("a", "Alpha", "open"), item("b", "Beta", "open"))

	d := Classify(base, base.Clone(), base.Clone())

	assert.True(t, d.Empty())
	assert.Empty(t, d.ToRemote)
	assert.Empty(t, d.ToLocal)
	assert.Empty(t, d.Conflicts)
}

func TestClassifyEmptyEverything(t *testing.T) {
	assert.True(t, Classify(proto.ItemSet{}, proto.ItemSet{}, proto.ItemSet{}).Empty())
	assert.True(t, Classify(nil, nil, nil).Empty())
}

func TestClassifyLocalCreate(t *testing.T) {
	base := set(item("a", "Alpha", "open"))
	local := set(item("a", "Alpha", "open"), item("b", "Beta", "open"))

	d := Classify(base, local, base.Clone())

	require.Len(t, d.ToRemote, 1)
	assert.Equal(t, ActionCreate, d.ToRemote[0].Kind)
	assert.Equal(t, proto.SyncLocalToRemote, d.ToRemote[0].Direction)
	assert.Equal(t, "b", d.ToRemote[0].Item.ID)
	assert.Empty(t, d.ToLocal)
	assert.Empty(t, d.Conflicts)
}

func TestClassifyRemoteUpdate(t *testing.T) {
	base := set(item("a", "Alpha", "open"))
	remote := set(item("a", "Alpha v2", "open"))

	d := Classify(base, base.Clone(), remote)

	require.Len(t, d.ToLocal, 1)
	assert.Equal(t, ActionUpdate, d.ToLocal[0].Kind)
	assert.Equal(t, "Alpha v2", d.ToLocal[0].Item.Title)
	assert.Empty(t, d.ToRemote)
}

func TestClassifyDisappearedBecomesClose(t *testing.T) {
	base := set(item("a", "Alpha", "open"))

	// Gone from the remote listing means closed remotely.
	d := Classify(base, base.Clone(), proto.ItemSet{})

	require.Len(t, d.ToLocal, 1)
	assert.Equal(t, ActionClose, d.ToLocal[0].Kind)
	assert.Equal(t, "closed", d.ToLocal[0].Item.State)
	assert.Equal(t, "a", d.ToLocal[0].Item.ID)
}

func TestClassifyStateFlipIsClose(t *testing.T) {
	base := set(item("a", "Alpha", "open"))
	local := set(item("a", "Alpha", "closed"))

	d := Classify(base, local, base.Clone())

	require.Len(t, d.ToRemote, 1)
	assert.Equal(t, ActionClose, d.ToRemote[0].Kind)
}

func TestClassifyBothChangedIsConflict(t *testing.T) {
	base := set(item("a", "Alpha", "open"))
	local := set(item("a", "Alpha local", "open"))
	remote := set(item("a", "Alpha remote", "open"))

	d := Classify(base, local, remote)

	assert.Empty(t, d.ToRemote)
	assert.Empty(t, d.ToLocal)
	require.Len(t, d.Conflicts, 1)
	assert.Equal(t, "a", d.Conflicts[0].ItemID)
	assert.True(t, d.Conflicts[0].LocalPresent)
	assert.True(t, d.Conflicts[0].RemotePresent)
}

func TestClassifyBothConvergedIsNoop(t *testing.T) {
	base := set(item("a", "Alpha", "open"))
	changed := set(item("a", "Alpha v2", "open"))

	d := Classify(base, changed, changed.Clone())

	assert.True(t, d.Empty())
}

func TestClassifyDeterministicOrder(t *testing.T) {
	base := proto.ItemSet{}
	local := set(item("c", "C", "open"), item("a", "A", "open"), item("b", "B", "open"))

	d := Classify(base, local, proto.ItemSet{})

	require.Len(t, d.ToRemote, 3)
	assert.Equal(t, "a", d.ToRemote[0].Item.ID)
	assert.Equal(t, "b", d.ToRemote[1].Item.ID)
	assert.Equal(t, "c", d.ToRemote[2].Item.ID)
}

func TestHashItemIgnoresNumberAndTimestamps(t *testing.T) {
	a := item("a", "Alpha", "open")
	b := a
	b.Number = 42

	assert.Equal(t, HashItem(a), HashItem(b))
}

func TestHashItemLabelOrderInsensitive(t *testing.T) {
	a := item("a", "Alpha", "open")
	a.Labels = []string{"x", "y"}
	b := a
	b.Labels = []string{"y", "x"}

	assert.Equal(t, HashItem(a), HashItem(b))
}
