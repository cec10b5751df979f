package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Borislavv/go-tier-cache/config"
)

func newTestFileStore(t *testing.T, mutate func(*config.PersistenceCfg)) *FileStore {
	t.Helper()
	cfg := &config.PersistenceCfg{
		Dir:          t.TempDir(),
		Crc32Control: true,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewFileStore(context.Background(), cfg)
}

func TestFileStorePutAndGetBatches(t *testing.T) {
	s := newTestFileStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.PutBatch(ctx, "users", "v1", []byte("first")))
	require.NoError(t, s.PutBatch(ctx, "users", "v1", []byte("second")))

	got, err := s.GetBatches(ctx, "users", "v1")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("first"), []byte("second")}, got)
}

func TestFileStoreUnknownVersionIsEmpty(t *testing.T) {
	s := newTestFileStore(t, nil)

	got, err := s.GetBatches(context.Background(), "users", "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFileStoreGzipRoundTrip(t *testing.T) {
	s := newTestFileStore(t, func(cfg *config.PersistenceCfg) { cfg.Gzip = true })
	ctx := context.Background()

	payload := []byte("compress me, compress me, compress me")
	require.NoError(t, s.PutBatch(ctx, "users", "v1", payload))

	files, err := filepath.Glob(filepath.Join(s.cfg.Dir, "users", "v1", "batch-*.dump.gz"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	got, err := s.GetBatches(ctx, "users", "v1")
	require.NoError(t, err)
	require.Equal(t, [][]byte{payload}, got)
}

func TestFileStoreSkipsCorruptedBatch(t *testing.T) {
	s := newTestFileStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.PutBatch(ctx, "users", "v1", []byte("good")))
	require.NoError(t, s.PutBatch(ctx, "users", "v1", []byte("bad")))

	files, err := filepath.Glob(filepath.Join(s.cfg.Dir, "users", "v1", "batch-*.dump"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	// flip a payload byte past the header, CRC must reject it
	raw, err := os.ReadFile(files[1])
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(files[1], raw, 0o644))

	got, err := s.GetBatches(ctx, "users", "v1")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("good")}, got)
}

func TestFileStoreDrop(t *testing.T) {
	s := newTestFileStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.PutBatch(ctx, "users", "v1", []byte("payload")))
	require.NoError(t, s.Drop(ctx, "users", "v1"))

	got, err := s.GetBatches(ctx, "users", "v1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFileStoreRotatesOldVersions(t *testing.T) {
	s := newTestFileStore(t, func(cfg *config.PersistenceCfg) { cfg.MaxVersions = 2 })
	ctx := context.Background()

	require.NoError(t, s.PutBatch(ctx, "users", "v1", []byte("a")))
	require.NoError(t, s.PutBatch(ctx, "users", "v2", []byte("b")))
	require.NoError(t, s.PutBatch(ctx, "users", "v3", []byte("c")))

	dirs, err := filepath.Glob(filepath.Join(s.cfg.Dir, "users", "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 2)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	src := []byte("payload")
	require.NoError(t, s.PutBatch(ctx, "users", "v1", src))
	src[0] = 'X' // stored copy must be independent

	got, err := s.GetBatches(ctx, "users", "v1")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("payload")}, got)

	require.NoError(t, s.Drop(ctx, "users", "v1"))
	got, err = s.GetBatches(ctx, "users", "v1")
	require.NoError(t, err)
	require.Nil(t, got)
}
