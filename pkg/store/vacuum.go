package store

import (
	"context"
	"errors"
	"time"

	"github.com/aleksaelezovic/quadra/internal/encoding"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// VacuumStats reports the work done by Vacuum.
type VacuumStats struct {
	ScannedTerms   uint64
	LiveTerms      uint64
	ReclaimedTerms uint64
	Duration       time.Duration
}

// Vacuum deletes dictionary entries that no stored quad refers to. A term
// is live when it occupies a position of some quad or is nested inside a
// live triple term. Deletion runs in transactions of the configured batch
// size, throttled by the vacuum rate limiter when one is set.
//
// Snapshots opened before Vacuum keep decoding the reclaimed ids. A term
// inserted again afterwards gets a new id.
func (s *Store) Vacuum(ctx context.Context) (VacuumStats, error) {
	start := time.Now()
	if err := s.acquire(ctx); err != nil {
		return VacuumStats{}, err
	}
	defer s.release()

	stats, dead, err := s.collectDead(ctx)
	if err == nil {
		err = s.reclaim(ctx, dead, &stats)
	}
	stats.Duration = time.Since(start)
	s.log.LogVacuum(ctx, stats, err)
	return stats, err
}

// collectDead marks live ids and returns every dictionary id left unmarked.
func (s *Store) collectDead(ctx context.Context) (VacuumStats, *roaring64.Bitmap, error) {
	var stats VacuumStats
	txn, err := s.storage.Begin(false)
	if err != nil {
		return stats, nil, storageErr("begin", err)
	}
	defer txn.Rollback() // #nosec G104 - read-only rollback cannot lose data

	live := roaring64.New()
	it := matchQuads(txn, AnyPattern)
	for it.Next() {
		for _, id := range it.Quad() {
			if id != DefaultGraphID {
				live.Add(uint64(id))
			}
		}
	}
	err = it.Err()
	_ = it.Close() // #nosec G104 - scan already drained
	if err != nil {
		return stats, nil, err
	}
	if err := ctx.Err(); err != nil {
		return stats, nil, err
	}

	all := roaring64.New()
	var nested []rdf.Term
	terms, err := txn.Scan(TableID2Term, nil)
	if err != nil {
		return stats, nil, storageErr("scan id2term", err)
	}
	for terms.Next() {
		id, err := encoding.DecodeUint64(terms.Key())
		if err != nil {
			_ = terms.Close() // #nosec G104 - error already being returned
			return stats, nil, &CorruptionError{Reason: "bad id2term key", Err: err}
		}
		all.Add(id)
		raw, err := terms.Value()
		if err != nil {
			_ = terms.Close() // #nosec G104 - error already being returned
			return stats, nil, storageErr("read id2term", err)
		}
		if len(raw) > 0 && raw[0] == encoding.TagTriple && live.Contains(id) {
			term, err := s.dict.dec.DecodeTerm(raw)
			if err != nil {
				_ = terms.Close() // #nosec G104 - error already being returned
				return stats, nil, &CorruptionError{Reason: "undecodable term", ID: TermID(id), Err: err}
			}
			nested = append(nested, term)
		}
	}
	_ = terms.Close() // #nosec G104 - scan already drained

	// Components of live triple terms stay live, recursively.
	for len(nested) > 0 {
		tt, ok := nested[len(nested)-1].(*rdf.TripleTerm)
		nested = nested[:len(nested)-1]
		if !ok {
			continue
		}
		for _, c := range []rdf.Term{tt.Subject, tt.Predicate, tt.Object} {
			key, err := s.dict.enc.EncodeTerm(c)
			if err != nil {
				return stats, nil, err
			}
			id, found, err := s.dict.load(txn, key)
			if err != nil {
				return stats, nil, err
			}
			if found && !live.Contains(uint64(id)) {
				live.Add(uint64(id))
				if c.Type() == rdf.TermTypeTriple {
					nested = append(nested, c)
				}
			}
		}
	}

	stats.ScannedTerms = all.GetCardinality()
	stats.LiveTerms = roaring64.And(all, live).GetCardinality()
	return stats, roaring64.AndNot(all, live), nil
}

// reclaim deletes the dead ids batch by batch and evicts them from the
// dictionary caches.
func (s *Store) reclaim(ctx context.Context, dead *roaring64.Bitmap, stats *VacuumStats) error {
	ids := dead.ToArray()
	evicted := roaring64.New()
	defer func() { s.dict.evict(evicted) }()

	for lo := 0; lo < len(ids); lo += s.opts.vacuumBatchSize {
		batch := ids[lo:min(lo+s.opts.vacuumBatchSize, len(ids))]
		if err := s.deleteTerms(ctx, batch); err != nil {
			return err
		}
		evicted.AddMany(batch)
		stats.ReclaimedTerms += uint64(len(batch))
	}
	return nil
}

func (s *Store) deleteTerms(ctx context.Context, ids []uint64) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return storageErr("begin", err)
	}
	defer txn.Rollback() // #nosec G104 - rollback after commit is a no-op

	for _, id := range ids {
		if s.opts.vacuumLimiter != nil {
			if err := s.opts.vacuumLimiter.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		idKey := encoding.EncodeUint64(id)
		raw, err := txn.Get(TableID2Term, idKey)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return storageErr("read id2term", err)
		}
		hash := s.dict.enc.Hash128(raw)
		if err := txn.Delete(TableTerm2ID, hash[:]); err != nil {
			return storageErr("delete term2id", err)
		}
		if err := txn.Delete(TableID2Term, idKey); err != nil {
			return storageErr("delete id2term", err)
		}
	}
	return storageErr("commit", txn.Commit())
}
