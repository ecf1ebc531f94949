package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aleksaelezovic/quadra/internal/encoding"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"golang.org/x/sync/errgroup"
)

// QuadSource is a pull iterator over quads to load.
type QuadSource interface {
	Next() bool
	Quad() *rdf.Quad
	Err() error
}

// SliceSource feeds BulkLoad from memory.
type SliceSource struct {
	quads []*rdf.Quad
	pos   int
}

func NewSliceSource(quads []*rdf.Quad) *SliceSource {
	return &SliceSource{quads: quads, pos: -1}
}

func (s *SliceSource) Next() bool {
	s.pos++
	return s.pos < len(s.quads)
}

func (s *SliceSource) Quad() *rdf.Quad { return s.quads[s.pos] }
func (s *SliceSource) Err() error      { return nil }

// BulkStats reports the work done by BulkLoad.
type BulkStats struct {
	Quads    int
	NewTerms int
	Duration time.Duration
}

// BulkLoad inserts every quad of src. Quads are read in chunks; each chunk
// is encoded by a pool of workers and flushed as one write batch. A chunk
// is durable once flushed, so readers may observe a prefix of the load and
// a failure leaves earlier chunks in place. Quads already present are
// rewritten without effect.
func (s *Store) BulkLoad(ctx context.Context, src QuadSource) (BulkStats, error) {
	start := time.Now()
	if err := s.acquire(ctx); err != nil {
		return BulkStats{}, err
	}
	defer s.release()

	var stats BulkStats
	chunk := make([]*rdf.Quad, 0, s.opts.bulkChunkSize)
	for {
		chunk = chunk[:0]
		for len(chunk) < cap(chunk) && src.Next() {
			chunk = append(chunk, src.Quad())
		}
		if err := src.Err(); err != nil {
			err = fmt.Errorf("read quads: %w", err)
			stats.Duration = time.Since(start)
			s.log.LogBulkLoad(ctx, stats, err)
			return stats, err
		}
		if len(chunk) == 0 {
			break
		}
		minted, err := s.loadChunk(ctx, chunk)
		if err != nil {
			stats.Duration = time.Since(start)
			s.log.LogBulkLoad(ctx, stats, err)
			return stats, err
		}
		stats.Quads += len(chunk)
		stats.NewTerms += minted
		s.log.Debug("bulk chunk flushed", "quads", stats.Quads, "new_terms", stats.NewTerms)
		if len(chunk) < cap(chunk) {
			break
		}
	}
	stats.Duration = time.Since(start)
	s.log.LogBulkLoad(ctx, stats, nil)
	return stats, nil
}

// loadChunk encodes and writes one chunk, returning the number of new
// terms.
func (s *Store) loadChunk(ctx context.Context, chunk []*rdf.Quad) (int, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return 0, storageErr("begin", err)
	}
	defer txn.Rollback() // #nosec G104 - read-only rollback cannot lose data

	batch := s.storage.NewBatch()
	sess := s.dict.newSession(txn, batch)

	workers := min(s.opts.bulkWorkers, len(chunk))
	per := (len(chunk) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(chunk); lo += per {
		part := chunk[lo:min(lo+per, len(chunk))]
		g.Go(func() error {
			for _, q := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := q.Validate(); err != nil {
					return err
				}
				var eq EncodedQuad
				for pos, t := range []rdf.Term{q.Subject, q.Predicate, q.Object, q.Graph} {
					id, err := sess.Encode(t)
					if err != nil {
						return err
					}
					eq[pos] = id
				}
				for _, ix := range indexes {
					ids := ix.key(eq)
					if err := batch.Set(ix.table, encoding.AppendIDs(nil, ids[:]...), nil); err != nil {
						return storageErr("write "+ix.table.String(), err)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		batch.Cancel()
		sess.forget()
		return 0, err
	}

	next := s.commits.Load() + 1
	if err := batch.Set(TableMeta, metaCommitsKey, encoding.EncodeUint64(next)); err != nil {
		batch.Cancel()
		sess.forget()
		return 0, storageErr("write commit counter", err)
	}
	if err := batch.Flush(); err != nil {
		sess.forget()
		return 0, storageErr("flush", err)
	}
	minted := sess.Minted()
	sess.settle()
	s.commits.Store(next)
	return minted, nil
}
