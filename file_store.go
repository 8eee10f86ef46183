package bamboo

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// fileStore implements Store using POSIX files with append-only semantics.
// Each feed lives in its own file named {author hex}-{log id}.feed.
//
// Frame format:
//
//	[8]byte: sequence number (uint64)
//	[2]byte: entry length (uint16)
//	[n]byte: encoded entry
//	[1]byte: payload flag (0 = not replicated, 1 = present)
//	[8]byte: payload length (uint64), only when the flag is 1
//	[m]byte: payload, only when the flag is 1
type fileStore struct {
	dir   string
	mu    sync.RWMutex
	files map[FeedID]*feedFile
}

type feedFile struct {
	f    *os.File
	last uint64
	// size is the offset just past the last frame. offsets[i] is where the
	// frame of seq i+1 starts.
	size    int64
	offsets []int64
}

const (
	feedFileExt     = ".feed"
	frameHeaderSize = 8 + 2
)

// OpenFileStore creates or opens a POSIX file-based store in the given directory.
func OpenFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return &fileStore{dir: dir, files: make(map[FeedID]*feedFile)}, nil
}

func (s *fileStore) feedPath(feed FeedID) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%d%s", feed.Author, feed.LogID, feedFileExt))
}

// openLocked returns the open file of feed, scanning it once for its last
// sequence number (caller must hold the write lock).
func (s *fileStore) openLocked(feed FeedID) (*feedFile, error) {
	if s.files == nil {
		return nil, ErrStoreClosed
	}
	if ff, ok := s.files[feed]; ok {
		return ff, nil
	}
	f, err := os.OpenFile(s.feedPath(feed), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open feed file: %w", err)
	}
	ff := &feedFile{f: f}
	ff.size, err = scanFrames(f, 0, feed, func(e StoredEntry, off int64) bool {
		ff.offsets = append(ff.offsets, off)
		ff.last = e.SeqNum
		return true
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.files[feed] = ff
	return ff, nil
}

// openExistingLocked is openLocked for feeds that already have a file. It
// returns nil for unknown feeds without creating one (caller must hold the
// write lock).
func (s *fileStore) openExistingLocked(feed FeedID) (*feedFile, error) {
	if s.files == nil {
		return nil, ErrStoreClosed
	}
	if ff, ok := s.files[feed]; ok {
		return ff, nil
	}
	if _, err := os.Stat(s.feedPath(feed)); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return s.openLocked(feed)
}

// Append writes an entry frame to the feed's file and syncs it.
func (s *fileStore) Append(e StoredEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ff, err := s.openLocked(e.Feed)
	if err != nil {
		return err
	}
	if ff.last != e.SeqNum-1 {
		return fmt.Errorf("%w: have %d, got %d", ErrNonContiguous, ff.last, e.SeqNum)
	}
	if len(e.Entry) > MaxEntrySize {
		return fmt.Errorf("entry of %d bytes exceeds %d", len(e.Entry), MaxEntrySize)
	}

	if err := syscall.Flock(int(ff.f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock feed file: %w", err)
	}
	defer syscall.Flock(int(ff.f.Fd()), syscall.LOCK_UN)

	frame := encodeFrame(e)
	if _, err := ff.f.Write(frame); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if err := ff.f.Sync(); err != nil {
		return fmt.Errorf("sync feed file: %w", err)
	}
	ff.offsets = append(ff.offsets, ff.size)
	ff.size += int64(len(frame))
	ff.last = e.SeqNum
	return nil
}

func encodeFrame(e StoredEntry) []byte {
	size := frameHeaderSize + len(e.Entry) + 1
	if e.Payload != nil {
		size += 8 + len(e.Payload)
	}
	buf := make([]byte, size)
	offset := 0

	binary.BigEndian.PutUint64(buf[offset:], e.SeqNum)
	offset += 8
	binary.BigEndian.PutUint16(buf[offset:], uint16(len(e.Entry)))
	offset += 2
	offset += copy(buf[offset:], e.Entry)

	if e.Payload == nil {
		buf[offset] = 0
		return buf
	}
	buf[offset] = 1
	offset++
	binary.BigEndian.PutUint64(buf[offset:], uint64(len(e.Payload)))
	offset += 8
	copy(buf[offset:], e.Payload)
	return buf
}

// scanFrames reads frames from offset start of r, calling fn with each frame
// and its offset until fn returns false. It returns the offset just past the
// last frame read.
func scanFrames(r io.ReadSeeker, start int64, feed FeedID, fn func(StoredEntry, int64) bool) (int64, error) {
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return start, fmt.Errorf("seek to frame: %w", err)
	}
	reader := bufio.NewReader(r)
	off := start
	for {
		var hdr [frameHeaderSize]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if err == io.EOF {
				return off, nil
			}
			return off, fmt.Errorf("read frame header: %w", err)
		}
		e := StoredEntry{Feed: feed, SeqNum: binary.BigEndian.Uint64(hdr[0:8])}
		e.Entry = make([]byte, binary.BigEndian.Uint16(hdr[8:10]))
		if _, err := io.ReadFull(reader, e.Entry); err != nil {
			return off, fmt.Errorf("read entry: %w", err)
		}
		flag, err := reader.ReadByte()
		if err != nil {
			return off, fmt.Errorf("read payload flag: %w", err)
		}
		size := int64(frameHeaderSize + len(e.Entry) + 1)
		if flag == 1 {
			var lenBuf [8]byte
			if _, err := io.ReadFull(reader, lenBuf[:]); err != nil {
				return off, fmt.Errorf("read payload length: %w", err)
			}
			e.Payload = make([]byte, binary.BigEndian.Uint64(lenBuf[:]))
			if _, err := io.ReadFull(reader, e.Payload); err != nil {
				return off, fmt.Errorf("read payload: %w", err)
			}
			size += int64(len(lenBuf) + len(e.Payload))
		}
		if !fn(e, off) {
			return off + size, nil
		}
		off += size
	}
}

// Get returns the entry at seq, reading its frame at the indexed offset.
func (s *fileStore) Get(feed FeedID, seq uint64) (StoredEntry, error) {
	if seq == 0 {
		return StoredEntry{}, ErrNotFound
	}
	var found StoredEntry
	var ok bool
	err := s.readFeed(feed, seq, func(e StoredEntry) bool {
		found, ok = e, e.SeqNum == seq
		return false
	})
	if err != nil {
		return StoredEntry{}, err
	}
	if !ok {
		return StoredEntry{}, ErrNotFound
	}
	return found, nil
}

// readFeed reads the frames of feed from startSeq onward through a separate
// read-only handle under a shared lock, so it never observes a half-written
// frame.
func (s *fileStore) readFeed(feed FeedID, startSeq uint64, fn func(StoredEntry) bool) error {
	if startSeq == 0 {
		startSeq = 1
	}
	s.mu.Lock()
	ff, err := s.openExistingLocked(feed)
	if err != nil || ff == nil || startSeq > uint64(len(ff.offsets)) {
		s.mu.Unlock()
		return err
	}
	off := ff.offsets[startSeq-1]
	f, err := os.Open(s.feedPath(feed))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("open feed file for reading: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH); err != nil {
		return fmt.Errorf("lock feed file: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_, err = scanFrames(f, off, feed, func(e StoredEntry, _ int64) bool { return fn(e) })
	return err
}

// Last returns the feed's last sequence number.
func (s *fileStore) Last(feed FeedID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ff, err := s.openExistingLocked(feed)
	if err != nil || ff == nil {
		return 0, err
	}
	return ff.last, nil
}

// Iter returns a channel that yields entries starting from startSeq.
func (s *fileStore) Iter(feed FeedID, startSeq uint64) (<-chan StoredEntry, func() error, error) {
	s.mu.RLock()
	closed := s.files == nil
	s.mu.RUnlock()
	if closed {
		return nil, nil, ErrStoreClosed
	}

	out := make(chan StoredEntry, 64)
	done := make(chan struct{})
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		err := s.readFeed(feed, startSeq, func(e StoredEntry) bool {
			select {
			case out <- e:
				return true
			case <-done:
				return false
			}
		})
		if err != nil {
			errc <- err
		}
	}()

	var once sync.Once
	cleanup := func() error {
		once.Do(func() { close(done) })
		select {
		case err := <-errc:
			return err
		default:
			return nil
		}
	}
	return out, cleanup, nil
}

// Feeds lists the feeds that have a file in the store directory.
func (s *fileStore) Feeds() ([]FeedID, error) {
	s.mu.RLock()
	closed := s.files == nil
	s.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}
	names, err := filepath.Glob(filepath.Join(s.dir, "*"+feedFileExt))
	if err != nil {
		return nil, err
	}
	var out []FeedID
	for _, name := range names {
		base := strings.TrimSuffix(filepath.Base(name), feedFileExt)
		authorHex, logID, ok := strings.Cut(base, "-")
		if !ok {
			continue
		}
		author, err := hex.DecodeString(authorHex)
		if err != nil || len(author) != PublicKeySize {
			continue
		}
		id, err := strconv.ParseUint(logID, 10, 64)
		if err != nil {
			continue
		}
		f := FeedID{LogID: id}
		copy(f.Author[:], author)
		out = append(out, f)
	}
	return out, nil
}

// Close closes the file store.
func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for feed, ff := range s.files {
		if err := ff.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close feed %s: %w", feed, err))
		}
	}
	s.files = nil
	return errors.Join(errs...)
}
