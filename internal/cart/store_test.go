package cart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.json")
	store := NewFileStore(path)

	l := Open(store, nil)
	l.Add(product("p1", 50000))
	l.Add(product("p1", 50000))
	l.Add(product("p2", 1000))

	reloaded := Open(NewFileStore(path), nil)
	require.Equal(t, l.Snapshot(), reloaded.Snapshot())
	require.Equal(t, int64(101000), reloaded.Total())
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
	entries, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestOpenMalformedFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	l := Open(NewFileStore(path), nil)
	require.True(t, l.IsEmpty())
}

func TestDecodeFormats(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want map[string]Entry
	}{
		{
			name: "items list",
			doc:  `{"items":[{"id":"p1","title":"iPhone 15","price":50000,"qty":2,"image":"a.png","meta":"128GB"}]}`,
			want: map[string]Entry{"p1": {ID: "p1", Title: "iPhone 15", Price: 50000, Qty: 2, Image: "a.png", Meta: "128GB"}},
		},
		{
			name: "keyed by id",
			doc:  `{"p2":{"title":"iPhone 13","price":40000,"qty":1,"photos":["x"]}}`,
			want: map[string]Entry{"p2": {ID: "p2", Title: "iPhone 13", Price: 40000, Qty: 1}},
		},
		{name: "empty", doc: ``, want: map[string]Entry{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.doc))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOpenDropsNonPositiveQuantities(t *testing.T) {
	store := NewMemoryStore()
	store.data = []byte(`{"items":[{"id":"p1","price":10,"qty":0},{"id":"p2","price":10,"qty":-1},{"id":"p3","price":10,"qty":3}]}`)

	l := Open(store, nil)
	require.Equal(t, 1, l.Len())
	_, ok := l.Get("p3")
	require.True(t, ok)
}
