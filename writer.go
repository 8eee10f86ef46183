package bamboo

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Keypair is an author's ed25519 identity.
type Keypair struct {
	Public PublicKey
	Secret [SecretKeySize]byte
}

// KeypairFromSeed derives the keypair for a 32-byte ed25519 seed.
func KeypairFromSeed(seed []byte) (Keypair, error) {
	var kp Keypair
	if len(seed) != SecretKeySize {
		return kp, fmt.Errorf("seed must be %d bytes, got %d", SecretKeySize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	copy(kp.Secret[:], seed)
	copy(kp.Public[:], priv[ed25519.SeedSize:])
	return kp, nil
}

// Writer publishes entries for one author into a Store. It is the single
// writer of each of the author's logs: appends to the same log are
// serialized, so no two entries are ever published with the same
// predecessor.
type Writer struct {
	kp    Keypair
	store Store
	log   *logrus.Logger

	mu    sync.Mutex
	feeds map[uint64]*sync.Mutex
}

// NewWriter creates a Writer for cfg.Keypair bound to a Store.
func NewWriter(cfg Config, st Store) (*Writer, error) {
	if st == nil {
		return nil, errors.New("nil store")
	}
	if cfg.Keypair == nil {
		return nil, errors.New("writer requires a keypair")
	}
	kp := *cfg.Keypair
	derived, err := KeypairFromSeed(kp.Secret[:])
	if err != nil {
		return nil, err
	}
	if derived.Public != kp.Public {
		return nil, errors.New("public key does not match secret key")
	}
	return &Writer{kp: kp, store: st, log: cfg.logger(), feeds: make(map[uint64]*sync.Mutex)}, nil
}

// Author returns the public key the writer signs with.
func (w *Writer) Author() PublicKey { return w.kp.Public }

func (w *Writer) feedLock(logID uint64) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.feeds[logID]
	if !ok {
		m = new(sync.Mutex)
		w.feeds[logID] = m
	}
	return m
}

// Publish appends payload as the next entry of log logID and returns the
// encoded entry. isEndOfFeed closes the log for good.
func (w *Writer) Publish(logID uint64, payload []byte, isEndOfFeed bool) ([]byte, error) {
	m := w.feedLock(logID)
	m.Lock()
	defer m.Unlock()

	feed := FeedID{Author: w.kp.Public, LogID: logID}
	last, err := w.store.Last(feed)
	if err != nil {
		return nil, fmt.Errorf("read log tail: %w", err)
	}

	req := PublishRequest{
		PublicKey:   w.kp.Public[:],
		SecretKey:   w.kp.Secret[:],
		LogID:       logID,
		Payload:     payload,
		IsEndOfFeed: isEndOfFeed,
		LastSeqNum:  last,
	}
	if last > 0 {
		prev, err := w.store.Get(feed, last)
		if err != nil {
			return nil, fmt.Errorf("load backlink entry %d: %w", last, err)
		}
		req.Backlink = prev.Entry
	}
	if seq := last + 1; RequiresSkipLink(seq) {
		anc := LipmaaAncestor(seq)
		lip, err := w.store.Get(feed, anc)
		if err != nil {
			return nil, fmt.Errorf("load lipmaa entry %d: %w", anc, err)
		}
		req.Lipmaa = lip.Entry
	}

	entry, err := PublishEntry(req)
	if err != nil {
		w.log.WithFields(feedFields(feed, last+1)).WithError(err).Warn("publish rejected")
		return nil, err
	}

	stored := StoredEntry{Feed: feed, SeqNum: last + 1, Entry: entry, Payload: payload}
	if stored.Payload == nil {
		stored.Payload = []byte{}
	}
	if err := w.store.Append(stored); err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}

	fields := feedFields(feed, last+1)
	fields["size"] = len(payload)
	if isEndOfFeed {
		w.log.WithFields(fields).Info("published end of feed")
	} else {
		w.log.WithFields(fields).Debug("published entry")
	}
	return entry, nil
}

// Close publishes an end-of-feed entry carrying payload on log logID.
func (w *Writer) Close(logID uint64, payload []byte) ([]byte, error) {
	return w.Publish(logID, payload, true)
}
