package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"imagestudio/storage"
	"imagestudio/types"
)

type brokenWrites struct {
	*storage.MemoryBackend
}

func (brokenWrites) Set(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

// flakyReads fails the next failReads Get calls.
type flakyReads struct {
	*storage.MemoryBackend
	failReads int
}

func (f *flakyReads) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failReads > 0 {
		f.failReads--
		return nil, errors.New("i/o timeout")
	}
	return f.MemoryBackend.Get(ctx, key)
}

func image(id string) types.GeneratedImage {
	return types.GeneratedImage{
		ID:        id,
		URL:       "https://image.pollinations.ai/prompt/x?model=flux",
		StyleID:   "pixel-art",
		Timestamp: "2026-10-17T10:00:00.000Z",
		Provider:  types.ProviderPollinations,
		Model:     "flux",
	}
}

func TestStore_ListEmpty(t *testing.T) {
	s := NewStore(storage.NewMemoryBackend(), zap.NewNop())
	got := s.List(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_ListCorrupt(t *testing.T) {
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Set(context.Background(), Key, []byte(`{"oops"`)))
	s := NewStore(backend, zap.NewNop())
	assert.Empty(t, s.List(context.Background()))
}

func TestStore_AppendKeepsOrder(t *testing.T) {
	s := NewStore(storage.NewMemoryBackend(), zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, image("a")))
	require.NoError(t, s.Append(ctx, image("b")))
	require.NoError(t, s.Append(ctx, image("c")))

	got := s.List(ctx)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestStore_AppendThenListProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore(storage.NewMemoryBackend(), zap.NewNop())
		ctx := context.Background()
		n := rapid.IntRange(0, 5).Draw(t, "prefill")
		for i := 0; i < n; i++ {
			if err := s.Append(ctx, image(fmt.Sprintf("pre-%d", i))); err != nil {
				t.Fatal(err)
			}
		}
		img := types.GeneratedImage{
			ID:            rapid.StringN(1, 20, -1).Draw(t, "id"),
			URL:           rapid.String().Draw(t, "url"),
			StyleID:       rapid.String().Draw(t, "style"),
			UploadedImage: rapid.String().Draw(t, "uploaded"),
			Timestamp:     rapid.String().Draw(t, "ts"),
			Provider:      types.ProviderGemini,
			Model:         rapid.String().Draw(t, "model"),
		}
		if err := s.Append(ctx, img); err != nil {
			t.Fatal(err)
		}
		got := s.List(ctx)
		if len(got) != n+1 || got[n] != img {
			t.Fatalf("last element mismatch: %+v vs %+v", got[len(got)-1], img)
		}
	})
}

func TestStore_RemoveByID(t *testing.T) {
	backend := storage.NewMemoryBackend()
	s := NewStore(backend, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, image("a")))
	require.NoError(t, s.Append(ctx, image("b")))

	n, err := s.RemoveByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	before, err := backend.Get(ctx, Key)
	require.NoError(t, err)

	// removing a missing id is a no-op
	n, err = s.RemoveByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	after, err := backend.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.Len(t, s.List(ctx), 1)
	assert.Equal(t, "b", s.List(ctx)[0].ID)
}

func TestStore_RemoveByPredicate(t *testing.T) {
	s := NewStore(storage.NewMemoryBackend(), zap.NewNop())
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		img := image(id)
		if id != "b" {
			img.Provider = types.ProviderGemini
		}
		require.NoError(t, s.Append(ctx, img))
	}

	n, err := s.Remove(ctx, func(img types.GeneratedImage) bool { return img.Provider == types.ProviderGemini })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, s.List(ctx), 1)
}

func TestStore_WriteFailure(t *testing.T) {
	backend := brokenWrites{storage.NewMemoryBackend()}
	s := NewStore(backend, zap.NewNop())

	err := s.Append(context.Background(), image("a"))
	require.Error(t, err)
	assert.Equal(t, types.ErrStorageError, types.CodeOf(err))
	assert.Empty(t, s.List(context.Background()))
}

func TestStore_Get(t *testing.T) {
	s := NewStore(storage.NewMemoryBackend(), zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, image("a")))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = s.Get(ctx, "zzz")
	assert.Equal(t, types.ErrNotFound, types.CodeOf(err))
}

func TestStore_Export(t *testing.T) {
	s := NewStore(storage.NewMemoryBackend(), zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, image("a")))
	require.NoError(t, s.Append(ctx, image("b")))

	var buf bytes.Buffer
	n, err := s.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "\n  {")

	var decoded []types.GeneratedImage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, s.List(ctx), decoded)
}

func TestStore_ReadFailureLeavesGalleryIntact(t *testing.T) {
	backend := &flakyReads{MemoryBackend: storage.NewMemoryBackend()}
	s := NewStore(backend, zap.NewNop())
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, image(id)))
	}

	backend.failReads = 1
	err := s.Append(ctx, image("d"))
	require.Error(t, err)
	assert.Equal(t, types.ErrStorageError, types.CodeOf(err))

	backend.failReads = 1
	_, err = s.RemoveByID(ctx, "a")
	assert.Equal(t, types.ErrStorageError, types.CodeOf(err))

	got := s.List(ctx)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})

	require.NoError(t, s.Append(ctx, image("d")))
	assert.Len(t, s.List(ctx), 4)
}

func TestStore_AppendRefusesToOverwriteCorruptData(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, Key, []byte(`{"oops"`)))
	s := NewStore(backend, zap.NewNop())

	err := s.Append(ctx, image("a"))
	assert.Equal(t, types.ErrStorageError, types.CodeOf(err))
	raw, err := backend.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, `{"oops"`, string(raw))
}

func TestStore_PersistsEmptyUploadedImage(t *testing.T) {
	backend := storage.NewMemoryBackend()
	s := NewStore(backend, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, image("a")))

	raw, err := backend.Get(ctx, Key)
	require.NoError(t, err)
	var stored []map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored, 1)
	assert.Contains(t, stored[0], "uploadedImage")
	assert.Equal(t, "", stored[0]["uploadedImage"])
}
