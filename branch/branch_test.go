package branch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/oplog"
)

func TestCheckout_EmptyLog(t *testing.T) {
	log := oplog.New[rune]()
	b, err := Checkout(log)
	require.NoError(t, err)
	require.Empty(t, b.Snapshot)
	require.Empty(t, b.Version)
}

func TestMergeChangesIntoBranch_FastForward(t *testing.T) {
	// S5: A has OpLog = ["abc"]; A checks out "abc"; A appends "def"
	// locally; merging over the same OpLog must hit the fast-forward
	// path and match a full checkout byte-for-byte.
	log := oplog.New[rune]()
	_, err := log.LocalInsert("A", 0, []rune("abc")...)
	require.NoError(t, err)

	b, err := Checkout(log)
	require.NoError(t, err)
	require.Equal(t, "abc", string(b.Snapshot))

	_, err = log.LocalInsert("A", 3, []rune("def")...)
	require.NoError(t, err)

	require.NoError(t, MergeChangesIntoBranch(log, b, nil))
	require.Equal(t, "abcdef", string(b.Snapshot))

	full, err := Checkout(log)
	require.NoError(t, err)
	require.Equal(t, string(full.Snapshot), string(b.Snapshot))
}

func TestMergeChangesIntoBranch_ConcurrentInsertsConverge(t *testing.T) {
	// S1, replayed through the incremental merge path rather than a full
	// checkout: two peers from empty, each inserts a run at position 0.
	a := oplog.New[rune]()
	_, err := a.LocalInsert("A", 0, []rune("Hello")...)
	require.NoError(t, err)
	bLog := oplog.New[rune]()
	_, err = bLog.LocalInsert("B", 0, []rune("World")...)
	require.NoError(t, err)

	branchA, err := Checkout(a)
	require.NoError(t, err)

	require.NoError(t, a.MergeFrom(bLog))
	require.NoError(t, MergeChangesIntoBranch(a, branchA, nil))

	require.Equal(t, "HelloWorld", string(branchA.Snapshot))

	full, err := Checkout(a)
	require.NoError(t, err)
	require.Equal(t, string(full.Snapshot), string(branchA.Snapshot))
}

func TestMergeChangesIntoBranch_ConcurrentDeleteAndInsert(t *testing.T) {
	// S2: common ancestor "hello". A inserts "!" at 5; B deletes [0,5).
	base := oplog.New[rune]()
	_, err := base.LocalInsert("base", 0, []rune("hello")...)
	require.NoError(t, err)

	a := oplog.New[rune]()
	require.NoError(t, a.MergeFrom(base))
	b := oplog.New[rune]()
	require.NoError(t, b.MergeFrom(base))

	_, err = a.LocalInsert("A", 5, '!')
	require.NoError(t, err)
	_, err = b.LocalDelete("B", 0, 5)
	require.NoError(t, err)

	branchA, err := Checkout(a)
	require.NoError(t, err)
	require.Equal(t, "hello!", string(branchA.Snapshot))

	require.NoError(t, a.MergeFrom(b))
	require.NoError(t, MergeChangesIntoBranch(a, branchA, nil))
	require.Equal(t, "!", string(branchA.Snapshot))

	full, err := Checkout(a)
	require.NoError(t, err)
	require.Equal(t, string(full.Snapshot), string(branchA.Snapshot))
}

func TestMergeChangesIntoBranch_Idempotent(t *testing.T) {
	log := oplog.New[rune]()
	_, err := log.LocalInsert("A", 0, []rune("ab")...)
	require.NoError(t, err)
	b, err := Checkout(log)
	require.NoError(t, err)

	heads := append([]causalgraph.LV(nil), log.Heads()...)
	require.NoError(t, MergeChangesIntoBranch(log, b, heads))
	require.NoError(t, MergeChangesIntoBranch(log, b, heads))
	require.Equal(t, "ab", string(b.Snapshot))
}
