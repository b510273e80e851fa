package mediagroup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlbumIsFlushedOnce(t *testing.T) {
	flushed := make(chan Group, 4)
	a := New(Options{Debounce: 30 * time.Millisecond, OnFlush: func(g Group) { flushed <- g }})

	assert.True(t, a.Add(Item{ChatID: 1, UserID: 7, MediaGroupID: "g", FileID: "a"}))
	assert.True(t, a.Add(Item{ChatID: 1, UserID: 7, MediaGroupID: "g", FileID: "b", Caption: "founders"}))
	assert.True(t, a.Add(Item{ChatID: 2, UserID: 8, MediaGroupID: "g", FileID: "c"}))

	got := map[int64]Group{}
	for i := 0; i < 2; i++ {
		select {
		case g := <-flushed:
			got[g.ChatID] = g
		case <-time.After(2 * time.Second):
			t.Fatal("album was not flushed")
		}
	}

	require.Contains(t, got, int64(1))
	assert.Equal(t, []string{"a", "b"}, got[1].FileIDs)
	assert.Equal(t, "founders", got[1].Caption)
	assert.Equal(t, int64(7), got[1].UserID)
	assert.Equal(t, []string{"c"}, got[2].FileIDs)

	select {
	case g := <-flushed:
		t.Fatalf("unexpected extra flush: %+v", g)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAddIgnoresLoosePhotos(t *testing.T) {
	a := New(Options{})
	assert.False(t, a.Add(Item{ChatID: 1, FileID: "a"}))
	assert.False(t, a.Add(Item{ChatID: 1, MediaGroupID: "g"}))
}

func TestCloseDropsPending(t *testing.T) {
	flushed := make(chan Group, 1)
	a := New(Options{Debounce: 20 * time.Millisecond, OnFlush: func(g Group) { flushed <- g }})

	a.Add(Item{ChatID: 1, MediaGroupID: "g", FileID: "a"})
	a.Close()
	assert.False(t, a.Add(Item{ChatID: 1, MediaGroupID: "g", FileID: "b"}))

	select {
	case <-flushed:
		t.Fatal("closed aggregator flushed")
	case <-time.After(80 * time.Millisecond):
	}
}
