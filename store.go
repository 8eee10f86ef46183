package bamboo

import (
	"errors"
	"fmt"
	"sync"
)

// Store errors.
var (
	ErrNotFound      = errors.New("entry not found")
	ErrNonContiguous = errors.New("non-contiguous append")
	ErrStoreClosed   = errors.New("store is closed")
)

// FeedID names one log: an author and one of its log ids.
type FeedID struct {
	Author PublicKey
	LogID  uint64
}

func (f FeedID) String() string { return fmt.Sprintf("%s/%d", f.Author, f.LogID) }

// StoredEntry is the persisted form of an entry. Payload is nil when the
// payload was not replicated.
type StoredEntry struct {
	Feed    FeedID
	SeqNum  uint64
	Entry   []byte
	Payload []byte
}

// Store persists encoded entries per feed. Implementations must reject an
// Append whose sequence number is not one past the feed's last entry.
type Store interface {
	Append(e StoredEntry) error
	Get(feed FeedID, seq uint64) (StoredEntry, error)
	// Last returns the highest sequence number stored for feed, 0 if none.
	Last(feed FeedID) (uint64, error)
	// Iter streams the entries of feed from startSeq in ascending order. The
	// returned func stops the stream early and reports any read error.
	Iter(feed FeedID, startSeq uint64) (<-chan StoredEntry, func() error, error)
	Feeds() ([]FeedID, error)
	Close() error
}

type memoryStore struct {
	mu     sync.RWMutex
	feeds  map[FeedID][]StoredEntry
	closed bool
}

// NewMemoryStore returns a Store that keeps everything in memory.
func NewMemoryStore() Store {
	return &memoryStore{feeds: make(map[FeedID][]StoredEntry)}
}

func (s *memoryStore) Append(e StoredEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	entries := s.feeds[e.Feed]
	if uint64(len(entries)) != e.SeqNum-1 {
		return fmt.Errorf("%w: have %d, got %d", ErrNonContiguous, len(entries), e.SeqNum)
	}
	s.feeds[e.Feed] = append(entries, cloneStored(e))
	return nil
}

func (s *memoryStore) Get(feed FeedID, seq uint64) (StoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return StoredEntry{}, ErrStoreClosed
	}
	entries := s.feeds[feed]
	if seq == 0 || seq > uint64(len(entries)) {
		return StoredEntry{}, ErrNotFound
	}
	return cloneStored(entries[seq-1]), nil
}

func (s *memoryStore) Last(feed FeedID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return uint64(len(s.feeds[feed])), nil
}

func (s *memoryStore) Iter(feed FeedID, startSeq uint64) (<-chan StoredEntry, func() error, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, nil, ErrStoreClosed
	}
	entries := s.feeds[feed]
	if startSeq == 0 {
		startSeq = 1
	}
	var snapshot []StoredEntry
	if startSeq <= uint64(len(entries)) {
		snapshot = append(snapshot, entries[startSeq-1:]...)
	}
	s.mu.RUnlock()

	out := make(chan StoredEntry, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for _, e := range snapshot {
			select {
			case out <- cloneStored(e):
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return out, func() error { once.Do(func() { close(done) }); return nil }, nil
}

func (s *memoryStore) Feeds() ([]FeedID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]FeedID, 0, len(s.feeds))
	for f := range s.feeds {
		out = append(out, f)
	}
	return out, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneStored(e StoredEntry) StoredEntry {
	e.Entry = append([]byte(nil), e.Entry...)
	if e.Payload != nil {
		e.Payload = append([]byte{}, e.Payload...)
	}
	return e
}

// collect drains an Iter stream into a slice.
func collect(st Store, feed FeedID, startSeq uint64) ([]StoredEntry, error) {
	ch, done, err := st.Iter(feed, startSeq)
	if err != nil {
		return nil, err
	}
	var out []StoredEntry
	for e := range ch {
		out = append(out, e)
	}
	return out, done()
}
