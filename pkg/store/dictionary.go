package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aleksaelezovic/quadra/internal/encoding"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	dictShardCount = 64

	// termSequenceKey names the id sequence inside TableMeta.
	termSequenceKey = "seq/term"
)

// Dictionary interns RDF terms to TermIDs and back.
//
// id2term maps an 8-byte big-endian id to the canonical term bytes;
// term2id maps the xxh3-128 hash of those bytes to the id. Ids come from a
// persistent sequence and are never reused. Entries that no quad refers to
// any longer stay until Store.Vacuum removes them.
type Dictionary struct {
	enc *encoding.TermEncoder
	dec *encoding.TermDecoder
	seq Sequence

	shards [dictShardCount]dictShard
	terms  *ristretto.Cache[uint64, rdf.Term]
}

type dictEntry struct {
	id TermID
	// pending entries were minted by an unfinished write and must not be
	// evicted: the backend cannot see them yet.
	pending bool
}

type dictShard struct {
	mu      sync.Mutex
	ids     map[string]dictEntry
	maxSize int
}

func newDictionary(seq Sequence, shardSize int, cacheBytes int64) (*Dictionary, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, rdf.Term]{
		NumCounters: max(cacheBytes/64, 1024),
		MaxCost:     max(cacheBytes, 1<<16),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("dictionary cache: %w", err)
	}
	d := &Dictionary{
		enc:   encoding.NewTermEncoder(),
		dec:   encoding.NewTermDecoder(),
		seq:   seq,
		terms: cache,
	}
	for i := range d.shards {
		d.shards[i].ids = make(map[string]dictEntry)
		d.shards[i].maxSize = shardSize
	}
	return d, nil
}

func (d *Dictionary) close() error {
	d.terms.Close()
	return d.seq.Release()
}

func (d *Dictionary) shardFor(key []byte) *dictShard {
	return &d.shards[d.enc.Hash64(key)%dictShardCount]
}

// Lookup returns the id of term without allocating one.
func (d *Dictionary) Lookup(r Reader, term rdf.Term) (TermID, bool, error) {
	if rdf.IsDefaultGraph(term) {
		return DefaultGraphID, true, nil
	}
	key, err := d.enc.EncodeTerm(term)
	if err != nil {
		return 0, false, err
	}
	shard := d.shardFor(key)
	shard.mu.Lock()
	e, ok := shard.ids[string(key)]
	shard.mu.Unlock()
	if ok {
		return e.id, true, nil
	}
	// Readers never populate the shard cache: an old snapshot may still see
	// entries a later vacuum removed.
	return d.load(r, key)
}

// load resolves canonical bytes through term2id and checks id2term for a
// hash collision.
func (d *Dictionary) load(r Reader, key []byte) (TermID, bool, error) {
	hash := d.enc.Hash128(key)
	raw, err := r.Get(TableTerm2ID, hash[:])
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("dictionary lookup", err)
	}
	v, err := encoding.DecodeUint64(raw)
	if err != nil {
		return 0, false, &CorruptionError{Reason: "bad term2id value", Err: err}
	}
	id := TermID(v)
	stored, err := r.Get(TableID2Term, encoding.EncodeUint64(v))
	if errors.Is(err, ErrNotFound) {
		return 0, false, &CorruptionError{Reason: "term2id entry without id2term entry", ID: id}
	}
	if err != nil {
		return 0, false, storageErr("dictionary lookup", err)
	}
	if string(stored) != string(key) {
		return 0, false, &CorruptionError{Reason: "term hash collision", ID: id}
	}
	return id, true, nil
}

// Decode returns the term of id. Unknown ids are a CorruptionError: ids
// only ever come from the store itself.
func (d *Dictionary) Decode(r Reader, id TermID) (rdf.Term, error) {
	if id == DefaultGraphID {
		return rdf.NewDefaultGraph(), nil
	}
	if term, ok := d.terms.Get(uint64(id)); ok {
		return term, nil
	}
	raw, err := r.Get(TableID2Term, encoding.EncodeUint64(uint64(id)))
	if errors.Is(err, ErrNotFound) {
		return nil, &CorruptionError{Reason: "unknown term id", ID: id}
	}
	if err != nil {
		return nil, storageErr("dictionary decode", err)
	}
	term, err := d.dec.DecodeTerm(raw)
	if err != nil {
		return nil, &CorruptionError{Reason: "undecodable term", ID: id, Err: err}
	}
	d.terms.Set(uint64(id), term, int64(len(raw)))
	return term, nil
}

// newSession starts tracking the ids minted by one write.
func (d *Dictionary) newSession(r Reader, w Writer) *dictSession {
	return &dictSession{dict: d, r: r, w: w}
}

// dictSession interns terms on behalf of one write transaction or one bulk
// load chunk. It is safe for concurrent use.
type dictSession struct {
	dict *Dictionary
	r    Reader
	w    Writer

	mu     sync.Mutex
	minted []string
}

// Encode returns the id of term, minting it on first sight. Concurrent
// calls for the same unseen term agree on one id: the lookup, the mint and
// the cache insert all happen under the term's shard lock.
func (s *dictSession) Encode(term rdf.Term) (TermID, error) {
	if rdf.IsDefaultGraph(term) {
		return DefaultGraphID, nil
	}
	d := s.dict
	key, err := d.enc.EncodeTerm(term)
	if err != nil {
		return 0, err
	}
	shard := d.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if e, ok := shard.ids[string(key)]; ok {
		return e.id, nil
	}
	id, ok, err := d.load(s.r, key)
	if err != nil {
		return 0, err
	}
	if ok {
		shard.put(string(key), dictEntry{id: id})
		return id, nil
	}

	next, err := d.seq.Next()
	if err != nil {
		return 0, storageErr("mint term id", err)
	}
	id = TermID(next + 1)
	hash := d.enc.Hash128(key)
	idKey := encoding.EncodeUint64(uint64(id))
	if err := s.w.Set(TableID2Term, idKey, key); err != nil {
		return 0, storageErr("write id2term", err)
	}
	if err := s.w.Set(TableTerm2ID, hash[:], idKey); err != nil {
		return 0, storageErr("write term2id", err)
	}
	shard.put(string(key), dictEntry{id: id, pending: true})

	s.mu.Lock()
	s.minted = append(s.minted, string(key))
	s.mu.Unlock()
	return id, nil
}

// Minted is the number of new terms interned by the session.
func (s *dictSession) Minted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.minted)
}

// settle marks the minted entries durable after a successful commit.
func (s *dictSession) settle() {
	s.mu.Lock()
	keys := s.minted
	s.minted = nil
	s.mu.Unlock()
	for _, key := range keys {
		shard := s.dict.shardFor([]byte(key))
		shard.mu.Lock()
		if e, ok := shard.ids[key]; ok {
			e.pending = false
			shard.ids[key] = e
		}
		shard.mu.Unlock()
	}
}

// forget drops the minted entries after an abort so that no later lookup
// returns an id the backend never stored.
func (s *dictSession) forget() int {
	s.mu.Lock()
	keys := s.minted
	s.minted = nil
	s.mu.Unlock()
	for _, key := range keys {
		shard := s.dict.shardFor([]byte(key))
		shard.mu.Lock()
		if e, ok := shard.ids[key]; ok {
			delete(shard.ids, key)
			s.dict.terms.Del(uint64(e.id))
		}
		shard.mu.Unlock()
	}
	return len(keys)
}

// evict removes ids from both caches. Used by vacuum.
func (d *Dictionary) evict(dead *roaring64.Bitmap) {
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		for key, e := range shard.ids {
			if dead.Contains(uint64(e.id)) {
				delete(shard.ids, key)
			}
		}
		shard.mu.Unlock()
	}
	it := dead.Iterator()
	for it.HasNext() {
		d.terms.Del(it.Next())
	}
}

// reset drops every cached entry. Used when the backend content is
// replaced wholesale.
func (d *Dictionary) reset() {
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		shard.ids = make(map[string]dictEntry)
		shard.mu.Unlock()
	}
	d.terms.Clear()
}

// put inserts under the held shard lock, evicting settled entries when the
// shard is over capacity.
func (s *dictShard) put(key string, e dictEntry) {
	if s.maxSize > 0 && len(s.ids) >= s.maxSize {
		target := s.maxSize * 3 / 4
		for k, old := range s.ids {
			if len(s.ids) <= target {
				break
			}
			if !old.pending {
				delete(s.ids, k)
			}
		}
	}
	s.ids[key] = e
}
