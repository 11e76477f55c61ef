package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waka/crdt-eg-walker/oplog"
)

func TestDocument_LocalEditsKeepSnapshotInSync(t *testing.T) {
	doc := CreateDocument[rune]()
	require.NoError(t, doc.DocInsert("A", 0, []rune("hello")...))
	require.Equal(t, "hello", string(doc.GetContent()))

	require.NoError(t, doc.DocDelete("A", 1, 2))
	require.Equal(t, "hlo", string(doc.GetContent()))
}

func TestDocument_MergeRemote_FastForward(t *testing.T) {
	log := oplog.New[rune]()
	_, err := log.LocalInsert("A", 0, []rune("abc")...)
	require.NoError(t, err)

	doc, err := OpenDocument(log)
	require.NoError(t, err)
	require.Equal(t, "abc", string(doc.GetContent()))

	_, err = log.LocalInsert("A", 3, []rune("def")...)
	require.NoError(t, err)

	require.NoError(t, doc.MergeRemote(log))
	require.Equal(t, "abcdef", string(doc.GetContent()))
}

func TestDocument_MergeRemote_ConcurrentConverges(t *testing.T) {
	// S1 through the Document façade.
	a := oplog.New[rune]()
	_, err := a.LocalInsert("A", 0, []rune("Hello")...)
	require.NoError(t, err)
	docA, err := OpenDocument(a)
	require.NoError(t, err)

	b := oplog.New[rune]()
	_, err = b.LocalInsert("B", 0, []rune("World")...)
	require.NoError(t, err)
	docB, err := OpenDocument(b)
	require.NoError(t, err)

	require.NoError(t, docA.MergeRemote(b))
	require.NoError(t, docB.MergeRemote(a))

	require.Equal(t, "HelloWorld", string(docA.GetContent()))
	require.Equal(t, "HelloWorld", string(docB.GetContent()))
}

func TestDocument_RestoreDocument_NoReplay(t *testing.T) {
	log := oplog.New[rune]()
	_, err := log.LocalInsert("A", 0, []rune("abc")...)
	require.NoError(t, err)

	doc := RestoreDocument(log, []rune("abc"), log.Heads())
	require.Equal(t, "abc", string(doc.GetContent()))
	require.Equal(t, log.Heads(), doc.Branch.Version)
}

func TestTextDocument_LocalEditsAndMerge(t *testing.T) {
	a := CreateTextDocument()
	require.NoError(t, a.TextDocInsert("A", 0, "hello"))
	require.Equal(t, "hello", a.GetTextDocText())

	b, err := OpenTextDocument(a.Log)
	require.NoError(t, err)
	require.Equal(t, "hello", b.GetTextDocText())

	require.NoError(t, a.TextDocInsert("A", 5, "!"))
	require.NoError(t, b.TextDocDelete("B", 0, 5))

	require.NoError(t, a.MergeTextRemote(b.Log))
	require.Equal(t, "!", a.GetTextDocText())
}
