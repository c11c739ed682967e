// Package store is the consensus store (C2): the durable, crash-
// consistent record of every certified block and every commit, plus the
// indexes the engine needs to resume after a restart (spec.md §4.1).
// Grounded on the teacher's engine/dag/state/state.go (a
// database.Database-backed DAG state) and on
// github.com/luxfi/database's Database/Batch/Reader/Writer contract,
// which this build imports rather than re-declaring.
package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"go.uber.org/zap"

	"github.com/dagbft/core/block"
	"github.com/dagbft/core/commit"
	"github.com/dagbft/core/consensuserrors"
	"github.com/dagbft/core/corelog"
	"github.com/dagbft/core/metrics"
)

// Key namespace tags. github.com/luxfi/database exposes a flat
// Has/Get/Put/Delete/NewBatch keyspace with no column families or
// iterator, so namespaces are realized as single-byte key prefixes
// (mirroring the teacher's own convention of prefixing keys rather than
// opening per-purpose database handles, see engine/dag/state/state.go).
const (
	tagBlock          byte = 'b' // round|author|digest -> certificate
	tagAuthorRound    byte = 'a' // author|round -> digest
	tagCommit         byte = 'c' // index -> commit
	tagCommitInfo     byte = 'i' // index -> info
	tagFinalized      byte = 'f' // index -> finalized commit
	lastCommitKey          = "last_commit"
	lastFinalizedKey       = "last_finalized_commit"
)

func blockKey(ref block.Ref) []byte {
	k := make([]byte, 0, 1+8+20+32)
	k = append(k, tagBlock)
	k = appendUint64(k, uint64(ref.Round))
	k = append(k, ref.Author[:]...)
	k = append(k, ref.Digest[:]...)
	return k
}

func authorRoundKey(author ids.NodeID, round block.Round) []byte {
	k := make([]byte, 0, 1+20+8)
	k = append(k, tagAuthorRound)
	k = append(k, author[:]...)
	k = appendUint64(k, uint64(round))
	return k
}

func commitKey(index commit.Index) []byte {
	k := make([]byte, 0, 1+8)
	k = append(k, tagCommit)
	return appendUint64(k, uint64(index))
}

func commitInfoKey(index commit.Index) []byte {
	k := make([]byte, 0, 1+8)
	k = append(k, tagCommitInfo)
	return appendUint64(k, uint64(index))
}

func finalizedKey(index commit.Index) []byte {
	k := make([]byte, 0, 1+8)
	k = append(k, tagFinalized)
	return appendUint64(k, uint64(index))
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// roundIndex is the in-memory realization of the `digests_by_round`
// namespace. The underlying database has no iterator (confirmed against
// the teacher's own database.Database contract), so the set of BlockRefs
// known for a round is kept in memory and rebuilt by RecoverBlocks on startup
// by replaying `blocks_by_author_round`; it is convenience state for the
// synchronizer, not a source of truth (spec.md §4.1's authoritative
// namespace is `blocks`).
type roundIndex struct {
	mu   sync.RWMutex
	byRd map[block.Round][]block.Ref
}

func newRoundIndex() *roundIndex {
	return &roundIndex{byRd: make(map[block.Round][]block.Ref)}
}

func (idx *roundIndex) add(ref block.Ref) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, existing := range idx.byRd[ref.Round] {
		if existing == ref {
			return
		}
	}
	idx.byRd[ref.Round] = append(idx.byRd[ref.Round], ref)
}

func (idx *roundIndex) get(round block.Round) []block.Ref {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]block.Ref, len(idx.byRd[round]))
	copy(out, idx.byRd[round])
	return out
}

func (idx *roundIndex) drop(round block.Round) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.byRd, round)
}

// Batch accumulates a collection of writes that must become visible
// atomically (spec.md §4.1's write contract). Zero value is ready to
// use.
type Batch struct {
	Blocks               []*block.Certificate
	Commits              []*commit.Commit
	CommitInfos          []*commit.Info
	LastCommit           *commit.Ref
	FinalizedCommits     []*commit.FinalizedCommit
	LastFinalizedCommit  *commit.Ref
}

// Store is the durable consensus store over a single
// database.Database, with an optional secondary backend for comparison
// mode (spec.md §4.1, original_source/consensus/core/src/storage/comparing_store.rs).
type Store struct {
	primary   database.Database
	secondary database.Database // nil unless comparing mode is enabled
	log       corelog.Logger
	metrics   metrics.Metrics // nil unless WithMetrics is called

	rounds *roundIndex

	maxLoggedDiscrepancies int
	mu                     sync.Mutex
	discrepanciesLogged    int
}

// New constructs a Store backed by primary alone.
func New(primary database.Database, log corelog.Logger) *Store {
	return &Store{primary: primary, log: log, rounds: newRoundIndex(), maxLoggedDiscrepancies: 100}
}

// WithComparing enables dual-backend comparison mode: every write also
// goes to secondary, and every read is additionally issued against
// secondary with mismatches logged up to maxLoggedDiscrepancies, after
// which further discrepancies are counted but not logged (spec.md
// §4.1's rate-limited discrepancy log, grounded on comparing_store.rs's
// bounded discrepancy reporting).
func (s *Store) WithComparing(secondary database.Database, maxLoggedDiscrepancies int) *Store {
	s.secondary = secondary
	if maxLoggedDiscrepancies > 0 {
		s.maxLoggedDiscrepancies = maxLoggedDiscrepancies
	}
	return s
}

// WithMetrics attaches the metric set this store reports discrepancies
// through. Safe to leave unset; a nil metrics.Metrics is skipped.
func (s *Store) WithMetrics(m metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// Write atomically persists batch. A failure is fatal per spec.md §4.1:
// callers must halt the engine rather than retry.
func (s *Store) Write(batch *Batch) error {
	if err := s.writeTo(s.primary, batch); err != nil {
		return consensuserrors.Wrap(consensuserrors.KindStore, "store: write primary", err)
	}
	if s.secondary != nil {
		if err := s.writeTo(s.secondary, batch); err != nil {
			return consensuserrors.Wrap(consensuserrors.KindStore, "store: write secondary", err)
		}
	}

	for _, cert := range batch.Blocks {
		s.rounds.add(cert.Ref())
	}
	return nil
}

func (s *Store) writeTo(db database.Database, batch *Batch) error {
	b := db.NewBatch()

	for _, cert := range batch.Blocks {
		ref := cert.Ref()
		if err := b.Put(blockKey(ref), cert.EncodeCertificate()); err != nil {
			return err
		}
		if err := b.Put(authorRoundKey(ref.Author, ref.Round), ref.Digest[:]); err != nil {
			return err
		}
	}
	for _, c := range batch.Commits {
		if err := b.Put(commitKey(c.Index), c.Encode()); err != nil {
			return err
		}
	}
	for _, info := range batch.CommitInfos {
		if err := b.Put(commitInfoKey(info.Ref.Index), info.EncodeInfo()); err != nil {
			return err
		}
	}
	if batch.LastCommit != nil {
		if err := b.Put([]byte(lastCommitKey), encodeRef(*batch.LastCommit)); err != nil {
			return err
		}
	}
	for _, fc := range batch.FinalizedCommits {
		if err := b.Put(finalizedKey(fc.Ref.Index), fc.EncodeFinalized()); err != nil {
			return err
		}
	}
	if batch.LastFinalizedCommit != nil {
		if err := b.Put([]byte(lastFinalizedKey), encodeRef(*batch.LastFinalizedCommit)); err != nil {
			return err
		}
	}
	return b.Write()
}

func encodeRef(ref commit.Ref) []byte {
	out := make([]byte, 0, 8+32)
	out = appendUint64(out, uint64(ref.Index))
	out = append(out, ref.Digest[:]...)
	return out
}

func decodeRef(data []byte) (commit.Ref, error) {
	if len(data) != 8+32 {
		return commit.Ref{}, fmt.Errorf("store: malformed commit ref")
	}
	var ref commit.Ref
	ref.Index = commit.Index(binary.BigEndian.Uint64(data[:8]))
	copy(ref.Digest[:], data[8:])
	return ref, nil
}

// WriteBlock persists a single certified block, convenience wrapper
// around Write for the proposer/certifier/synchronizer call sites.
func (s *Store) WriteBlock(cert *block.Certificate) error {
	return s.Write(&Batch{Blocks: []*block.Certificate{cert}})
}

// WriteCommit implements commit.Writer.
func (s *Store) WriteCommit(c *commit.Commit, info *commit.Info) error {
	return s.Write(&Batch{
		Commits:     []*commit.Commit{c},
		CommitInfos: []*commit.Info{info},
		LastCommit:  &commit.Ref{Index: c.Index, Digest: c.Digest},
	})
}

// WriteFinalizedCommit implements the finalizer's (C9) write path.
func (s *Store) WriteFinalizedCommit(fc *commit.FinalizedCommit) error {
	return s.Write(&Batch{
		FinalizedCommits:    []*commit.FinalizedCommit{fc},
		LastFinalizedCommit: &fc.Ref,
	})
}

// GetBlock looks up a certified block by BlockRef.
func (s *Store) GetBlock(ref block.Ref) (*block.Certificate, bool, error) {
	raw, found, err := s.get(blockKey(ref))
	if err != nil || !found {
		return nil, found, err
	}
	cert, err := block.DecodeCertificate(raw)
	if err != nil {
		return nil, true, consensuserrors.Wrap(consensuserrors.KindStore, "store: decode block", err)
	}
	return cert, true, nil
}

// GetBlockByAuthorRound resolves the single BlockRef an honest author
// produced at round, if any (spec.md §4.1's blocks_by_author_round
// namespace — at most one entry per key since authors may not
// equivocate).
func (s *Store) GetBlockByAuthorRound(author ids.NodeID, round block.Round) (block.Ref, bool, error) {
	raw, found, err := s.get(authorRoundKey(author, round))
	if err != nil || !found {
		return block.Ref{}, found, err
	}
	var digest ids.ID
	copy(digest[:], raw)
	return block.Ref{Round: round, Author: author, Digest: digest}, true, nil
}

// RoundDigests returns every BlockRef known for round, for the
// synchronizer's round-fill requests.
func (s *Store) RoundDigests(round block.Round) []block.Ref {
	return s.rounds.get(round)
}

// MultiGetBlocks bulk-resolves a list of BlockRefs, per spec.md §4.1's
// read contract. Missing refs are omitted rather than erroring, since a
// caller typically wants "whatever is available".
func (s *Store) MultiGetBlocks(refs []block.Ref) ([]*block.Certificate, error) {
	out := make([]*block.Certificate, 0, len(refs))
	for _, ref := range refs {
		cert, found, err := s.GetBlock(ref)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, cert)
		}
	}
	return out, nil
}

// GetCommit reads a single commit by index.
func (s *Store) GetCommit(index commit.Index) (*commit.Commit, bool, error) {
	raw, found, err := s.get(commitKey(index))
	if err != nil || !found {
		return nil, found, err
	}
	c, err := commit.Decode(raw)
	if err != nil {
		return nil, true, consensuserrors.Wrap(consensuserrors.KindStore, "store: decode commit", err)
	}
	return c, true, nil
}

// ScanCommits returns commits [from, to] inclusive, in index order.
// Index is a dense, strictly increasing sequence so this is a sequence
// of point lookups rather than a true range scan, which is sufficient
// given github.com/luxfi/database's iterator-less Database contract.
func (s *Store) ScanCommits(from, to commit.Index) ([]*commit.Commit, error) {
	if to < from {
		return nil, nil
	}
	out := make([]*commit.Commit, 0, to-from+1)
	for i := from; i <= to; i++ {
		c, found, err := s.GetCommit(i)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// LastCommit implements commit.Reader.
func (s *Store) LastCommit() (commit.Ref, bool, error) {
	raw, found, err := s.get([]byte(lastCommitKey))
	if err != nil || !found {
		return commit.Ref{}, found, err
	}
	ref, err := decodeRef(raw)
	return ref, true, err
}

// LastCommitInfo implements commit.Reader.
func (s *Store) LastCommitInfo() (*commit.Info, bool, error) {
	last, ok, err := s.LastCommit()
	if err != nil || !ok {
		return nil, ok, err
	}
	raw, found, err := s.get(commitInfoKey(last.Index))
	if err != nil || !found {
		return nil, found, err
	}
	info, err := commit.DecodeInfo(raw)
	if err != nil {
		return nil, true, consensuserrors.Wrap(consensuserrors.KindStore, "store: decode commit info", err)
	}
	return info, true, nil
}

// GetFinalizedCommit reads a finalized commit by index.
func (s *Store) GetFinalizedCommit(index commit.Index) (*commit.FinalizedCommit, bool, error) {
	raw, found, err := s.get(finalizedKey(index))
	if err != nil || !found {
		return nil, found, err
	}
	fc, err := commit.DecodeFinalized(raw)
	if err != nil {
		return nil, true, consensuserrors.Wrap(consensuserrors.KindStore, "store: decode finalized commit", err)
	}
	return fc, true, nil
}

// LastFinalizedCommit reads the single last_finalized_commit cell.
func (s *Store) LastFinalizedCommit() (commit.Ref, bool, error) {
	raw, found, err := s.get([]byte(lastFinalizedKey))
	if err != nil || !found {
		return commit.Ref{}, found, err
	}
	ref, err := decodeRef(raw)
	return ref, true, err
}

// RecoverBlocks resolves every certified block authored by one of
// authorities between fromRound and toRound inclusive, for rebuilding
// the in-memory DAG on startup (spec.md §4.7 step 3: "scanning
// blocks_by_author_round"). Bounded round-range point lookups stand in
// for a true range scan given the iterator-less Database contract.
func (s *Store) RecoverBlocks(authorities []ids.NodeID, fromRound, toRound block.Round) ([]*block.Certificate, error) {
	var out []*block.Certificate
	for round := fromRound; round <= toRound; round++ {
		for _, author := range authorities {
			ref, ok, err := s.GetBlockByAuthorRound(author, round)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			cert, ok, err := s.GetBlock(ref)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, cert)
				s.rounds.add(ref)
			}
		}
		if round == toRound {
			break // avoid overflow when toRound is the max block.Round value
		}
	}
	return out, nil
}

// AdvanceGC drops the in-memory round index below the new frontier; it
// never touches the durable backend, mirroring dagstate.DAG.Update and
// spec.md §4.3's advance_gc ("does not touch storage").
func (s *Store) AdvanceGC(belowRound block.Round) {
	for r := range s.rounds.byRd {
		if r < belowRound {
			s.rounds.drop(r)
		}
	}
}

// get reads key from primary, and — in comparing mode — also from
// secondary, logging (rate-limited) any discrepancy. The canonical
// returned value always comes from primary (spec.md §4.1: "behavior
// must be deterministic").
func (s *Store) get(key []byte) ([]byte, bool, error) {
	primaryHas, err := s.primary.Has(key)
	if err != nil {
		return nil, false, err
	}
	var primaryVal []byte
	if primaryHas {
		primaryVal, err = s.primary.Get(key)
		if err != nil {
			return nil, false, err
		}
	}

	if s.secondary != nil {
		s.compare(key, primaryHas, primaryVal)
	}
	return primaryVal, primaryHas, nil
}

func (s *Store) compare(key []byte, primaryHas bool, primaryVal []byte) {
	secHas, err := s.secondary.Has(key)
	if err != nil {
		s.logDiscrepancy("secondary Has error", key, err)
		return
	}
	if secHas != primaryHas {
		s.logDiscrepancy("presence mismatch", key, nil)
		return
	}
	if !primaryHas {
		return
	}
	secVal, err := s.secondary.Get(key)
	if err != nil {
		s.logDiscrepancy("secondary Get error", key, err)
		return
	}
	if string(secVal) != string(primaryVal) {
		s.logDiscrepancy("value mismatch", key, nil)
	}
}

func (s *Store) logDiscrepancy(reason string, key []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discrepanciesLogged++
	if s.metrics != nil {
		s.metrics.StoreDiscrepancies().Inc()
	}
	if s.discrepanciesLogged > s.maxLoggedDiscrepancies {
		return
	}
	if err != nil {
		s.log.Warn("store comparing-mode discrepancy: "+reason, zap.Binary("key", key), zap.Error(err))
	} else {
		s.log.Warn("store comparing-mode discrepancy: "+reason, zap.Binary("key", key))
	}
}

// Close closes the underlying backend(s).
func (s *Store) Close() error {
	if err := s.primary.Close(); err != nil {
		return err
	}
	if s.secondary != nil {
		return s.secondary.Close()
	}
	return nil
}
