package meetings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abuabdirohman4/generus-mandiri-sub001/internal/db"
)

const (
	defaultChunkSize   = 200
	defaultParallelism = 4
)

// LogFetcher retrieves attendance rows for a set of meetings in chunked
// "meeting_id = ANY(...)" queries. Chunks are read-only and commute, so they
// fan out concurrently; any chunk error fails the whole fetch.
type LogFetcher struct {
	store       *db.Store
	chunkSize   int
	parallelism int
}

func NewLogFetcher(store *db.Store, chunkSize, parallelism int) *LogFetcher {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &LogFetcher{store: store, chunkSize: chunkSize, parallelism: parallelism}
}

func (f *LogFetcher) Fetch(ctx context.Context, meetingIDs []uuid.UUID) ([]db.AttendanceLog, error) {
	if len(meetingIDs) == 0 {
		return nil, nil
	}
	chunks := chunkIDs(meetingIDs, f.chunkSize)
	results := make([][]db.AttendanceLog, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			logs, err := f.store.ListAttendanceByMeetingIDs(gctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = logs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch attendance logs: %w: %w", ErrPartialBatch, err)
	}

	total := 0
	for _, part := range results {
		total += len(part)
	}
	merged := make([]db.AttendanceLog, 0, total)
	for _, part := range results {
		merged = append(merged, part...)
	}
	return merged, nil
}

func chunkIDs(ids []uuid.UUID, size int) [][]uuid.UUID {
	var chunks [][]uuid.UUID
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
