package persist

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/shared/bytes"
	"github.com/Borislavv/go-tier-cache/internal/shared/rate"
)

// FileStore persists batches as versioned files under
// <dir>/<handler>/<version>/batch-<seq>.dump[.gz]. Every batch is
// framed with its length and an optional CRC32 so a torn or corrupted
// batch is skipped on load instead of failing the whole restore.
type FileStore struct {
	cfg    *config.PersistenceCfg
	jitter *rate.Jitter
}

func NewFileStore(ctx context.Context, cfg *config.PersistenceCfg) *FileStore {
	s := &FileStore{cfg: cfg}
	if cfg.FlushesPerSec > 0 {
		s.jitter = rate.NewJitter(ctx, cfg.FlushesPerSec)
	}
	return s
}

func (s *FileStore) versionDir(name, version string) string {
	return filepath.Join(s.cfg.Dir, name, version)
}

func (s *FileStore) PutBatch(ctx context.Context, name, version string, batch []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.jitter.Take()

	dir := s.versionDir(name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}

	seq, err := nextBatchSeq(dir)
	if err != nil {
		return err
	}
	ext := ".dump"
	if s.cfg.Gzip {
		ext += ".gz"
	}
	path := filepath.Join(dir, fmt.Sprintf("batch-%06d%s", seq, ext))
	tmp := path + ".tmp"

	start := time.Now()
	if err = s.writeBatchFile(tmp, batch); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish batch file: %w", err)
	}

	if s.cfg.MaxVersions > 0 {
		rotateVersionDirs(filepath.Join(s.cfg.Dir, name), s.cfg.MaxVersions)
	}

	log.Debug().
		Str("cache", name).
		Str("version", version).
		Str("size", bytes.FmtMem(uint64(len(batch)))).
		Str("elapsed", time.Since(start).String()).
		Msg("batch flushed")

	return nil
}

func (s *FileStore) writeBatchFile(path string, batch []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create batch file: %w", err)
	}

	var (
		writer io.Writer = f
		gw     *gzip.Writer
	)
	if s.cfg.Gzip {
		gw = gzip.NewWriter(f)
		writer = gw
	}
	bw := bufio.NewWriterSize(writer, 512*1024)

	var crc uint32
	if s.cfg.Crc32Control {
		crc = crc32.ChecksumIEEE(batch)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint32(lenBuf[0:4], uint32(len(batch)))
	binary.LittleEndian.PutUint32(lenBuf[4:8], crc)

	if _, err = bw.Write(lenBuf[:]); err == nil {
		_, err = bw.Write(batch)
	}
	if flushErr := bw.Flush(); err == nil {
		err = flushErr
	}
	if gw != nil {
		if closeErr := gw.Close(); err == nil {
			err = closeErr
		}
	}
	if syncErr := f.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write batch file: %w", err)
	}
	return nil
}

func (s *FileStore) GetBatches(ctx context.Context, name, version string) ([][]byte, error) {
	dir := s.versionDir(name, version)
	all, _ := filepath.Glob(filepath.Join(dir, "batch-*.dump*"))
	files := all[:0]
	for _, file := range all {
		// a leftover .tmp is an unpublished batch from a crashed flush
		if !strings.HasSuffix(file, ".tmp") {
			files = append(files, file)
		}
	}
	if len(files) == 0 {
		// absent version: empty restore, not an error
		return nil, nil
	}
	sort.Strings(files)

	start := time.Now()
	var out [][]byte
	var failures int
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := s.readBatchFile(file)
		if err != nil {
			log.Err(err).Str("file", file).Msg("batch skipped")
			failures++
			continue
		}
		out = append(out, batch)
	}

	log.Info().
		Str("cache", name).
		Str("version", version).
		Int("restored", len(out)).
		Int("fails", failures).
		Str("elapsed", time.Since(start).String()).
		Msg("restoring batches")

	return out, nil
}

func (s *FileStore) readBatchFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gzr, gzErr := gzip.NewReader(f)
		if gzErr != nil {
			return nil, fmt.Errorf("gzip open: %w", gzErr)
		}
		defer gzr.Close()
		reader = gzr
	}

	br := bufio.NewReaderSize(reader, 512*1024)
	var metaBuf [8]byte
	if _, err = io.ReadFull(br, metaBuf[:]); err != nil {
		return nil, fmt.Errorf("read batch meta: %w", err)
	}
	sz := binary.LittleEndian.Uint32(metaBuf[0:4])
	expCRC := binary.LittleEndian.Uint32(metaBuf[4:8])

	buf := make([]byte, sz)
	if _, err = io.ReadFull(br, buf); err != nil {
		return nil, fmt.Errorf("read batch body: %w", err)
	}
	if s.cfg.Crc32Control && crc32.ChecksumIEEE(buf) != expCRC {
		return nil, fmt.Errorf("crc mismatch in %s", filepath.Base(path))
	}
	return buf, nil
}

func (s *FileStore) Drop(_ context.Context, name, version string) error {
	if err := os.RemoveAll(s.versionDir(name, version)); err != nil {
		return fmt.Errorf("drop version dir: %w", err)
	}
	return nil
}

// nextBatchSeq picks the next sequential batch number within a dir.
func nextBatchSeq(dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "batch-*.dump*"))
	if err != nil {
		return 0, fmt.Errorf("scan batch dir: %w", err)
	}
	maxSeq := 0
	for _, file := range files {
		var seq int
		if _, scanErr := fmt.Sscanf(filepath.Base(file), "batch-%06d", &seq); scanErr != nil {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq + 1, nil
}

// rotateVersionDirs keeps only the newest `max` version dirs, removes the rest.
func rotateVersionDirs(baseDir string, max int) {
	entries, _ := filepath.Glob(filepath.Join(baseDir, "*"))
	if len(entries) <= max {
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		fi, _ := os.Stat(entries[i])
		fj, _ := os.Stat(entries[j])
		if fi == nil || fj == nil {
			return entries[i] > entries[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})
	for _, dir := range entries[max:] {
		os.RemoveAll(dir)
		log.Info().Msgf("removed old snapshot dir: %s", dir)
	}
}
