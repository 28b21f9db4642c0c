package data

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/threadbot/threadbot/internal/biz/domain"
	"github.com/threadbot/threadbot/internal/biz/repo"
)

// maxArchiveLine bounds one encoded record in an archive
const maxArchiveLine = 16 << 20

// Archive writes every indexed record to w as zstd-compressed JSON lines.
// Ids in the index without a stored record are skipped.
func Archive(ctx context.Context, records repo.RecordRepo, w io.Writer) (int, error) {
	ids, err := records.List(ctx)
	if err != nil {
		return 0, err
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, fmt.Errorf("failed to create encoder: %w", err)
	}
	enc := json.NewEncoder(zw)

	n := 0
	for _, id := range ids {
		rec, err := records.Get(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			zw.Close()
			return n, fmt.Errorf("failed to read %s: %w", id, err)
		}
		if err := enc.Encode(rec); err != nil {
			zw.Close()
			return n, fmt.Errorf("failed to write %s: %w", id, err)
		}
		n++
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("failed to finish archive: %w", err)
	}
	return n, nil
}

// Restore puts every record of an archive back and registers it in the index
func Restore(ctx context.Context, records repo.RecordRepo, r io.Reader) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64<<10), maxArchiveLine)

	n := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec domain.ConversationRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return n, fmt.Errorf("failed to decode record %d: %w", n+1, err)
		}
		if rec.ID == "" {
			return n, fmt.Errorf("record %d has no id", n+1)
		}
		rec.Normalize()

		if err := records.Put(ctx, &rec); err != nil {
			return n, fmt.Errorf("failed to store %s: %w", rec.ID, err)
		}
		if err := records.Register(ctx, rec.ID); err != nil {
			return n, fmt.Errorf("failed to index %s: %w", rec.ID, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("failed to read archive: %w", err)
	}
	return n, nil
}
