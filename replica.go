package bamboo

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrConflict reports an entry that differs from the one already stored at
// the same position of its feed: the author forked the log.
var ErrConflict = errors.New("entry conflicts with stored entry")

// Replica ingests entries from other peers, verifying each against the
// entries it already holds before storing it.
type Replica struct {
	store   Store
	log     *logrus.Logger
	workers int
}

// NewReplica creates a Replica bound to a Store.
func NewReplica(cfg Config, st Store) (*Replica, error) {
	if st == nil {
		return nil, errors.New("nil store")
	}
	return &Replica{store: st, log: cfg.logger(), workers: cfg.VerifyWorkers}, nil
}

// Add verifies entryBytes and appends it to its feed. payload may be nil when
// the payload is not replicated, in which case only the signature and links
// are checked. Re-adding an identical stored entry is a no-op; filling in a
// missing payload is not supported.
func (r *Replica) Add(entryBytes, payload []byte) error {
	e, err := Decode(entryBytes)
	if err != nil {
		return wrap(VerifyDecodeEntry, err)
	}
	feed := FeedID{Author: e.Author, LogID: e.LogID}
	fields := feedFields(feed, e.SeqNum)

	last, err := r.store.Last(feed)
	if err != nil {
		return fmt.Errorf("read log tail: %w", err)
	}
	if e.SeqNum <= last {
		have, err := r.store.Get(feed, e.SeqNum)
		if err != nil {
			return fmt.Errorf("load entry %d: %w", e.SeqNum, err)
		}
		if !bytes.Equal(have.Entry, entryBytes) {
			r.log.WithFields(fields).Warn("conflicting entry")
			return fmt.Errorf("%w: %s seq %d", ErrConflict, feed, e.SeqNum)
		}
		return nil
	}
	if e.SeqNum != last+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrNonContiguous, last, e.SeqNum)
	}

	var backlink, lipmaa []byte
	if e.SeqNum > 1 {
		prev, err := r.store.Get(feed, last)
		if err != nil {
			return fmt.Errorf("load backlink entry %d: %w", last, err)
		}
		backlink = prev.Entry
	}
	if RequiresSkipLink(e.SeqNum) {
		anc := LipmaaAncestor(e.SeqNum)
		lip, err := r.store.Get(feed, anc)
		if err != nil {
			return fmt.Errorf("load lipmaa entry %d: %w", anc, err)
		}
		lipmaa = lip.Entry
	}

	if err := verify(&e, payload, payload != nil, backlink, lipmaa); err != nil {
		r.log.WithFields(fields).WithError(err).Warn("rejected entry")
		return err
	}
	err = r.store.Append(StoredEntry{
		Feed:    feed,
		SeqNum:  e.SeqNum,
		Entry:   append([]byte(nil), entryBytes...),
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	r.log.WithFields(fields).Debug("added entry")
	return nil
}

// VerifyFeed re-verifies every stored entry of feed against its stored
// neighbours. Entries stored without payload are checked for signature and
// links only. It returns the first failure in sequence order.
func (r *Replica) VerifyFeed(ctx context.Context, feed FeedID) error {
	entries, err := collect(r.store, feed, 1)
	if err != nil {
		return err
	}
	items := make([]VerifyItem, len(entries))
	for i, se := range entries {
		it := VerifyItem{Entry: se.Entry, Payload: se.Payload, SkipPayload: se.Payload == nil}
		if i > 0 {
			it.Backlink = entries[i-1].Entry
		}
		if seq := uint64(i + 1); RequiresSkipLink(seq) {
			it.Lipmaa = entries[LipmaaAncestor(seq)-1].Entry
		}
		items[i] = it
	}
	for i, err := range VerifyBatch(ctx, items, r.workers) {
		if err != nil {
			r.log.WithFields(feedFields(feed, uint64(i+1))).WithError(err).Warn("stored entry failed verification")
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	r.log.WithFields(feedFields(feed, uint64(len(entries)))).Info("feed verified")
	return nil
}

// Certificate returns the stored entries on the lipmaa path from seq down to
// the first entry, in that order. Passing their Entry bytes to
// VerifyCertificate proves the entry at seq belongs to the feed that starts at
// entry 1.
func (r *Replica) Certificate(feed FeedID, seq uint64) ([]StoredEntry, error) {
	path := CertificatePath(seq)
	if len(path) == 0 {
		return nil, ErrNotFound
	}
	out := make([]StoredEntry, 0, len(path))
	for _, s := range path {
		se, err := r.store.Get(feed, s)
		if err != nil {
			return nil, fmt.Errorf("certificate entry %d: %w", s, err)
		}
		out = append(out, se)
	}
	return out, nil
}

// Export bundles the stored entries of feed from seq onward.
func (r *Replica) Export(feed FeedID, from uint64) ([]byte, error) {
	entries, err := collect(r.store, feed, from)
	if err != nil {
		return nil, err
	}
	items := make([]BundleItem, len(entries))
	for i, se := range entries {
		items[i] = BundleItem{Entry: se.Entry, Payload: se.Payload}
	}
	return MarshalBundle(items), nil
}

// Import adds the entries of a bundle in order and returns how many were
// processed before the first failure.
func (r *Replica) Import(bundle []byte) (int, error) {
	items, err := UnmarshalBundle(bundle)
	if err != nil {
		return 0, err
	}
	for i, it := range items {
		if err := r.Add(it.Entry, it.Payload); err != nil {
			return i, fmt.Errorf("bundle item %d: %w", i, err)
		}
	}
	return len(items), nil
}
