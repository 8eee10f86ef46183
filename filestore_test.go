package bamboo

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

//revive:disable:cyclomatic High complexity acceptable in tests

func TestFileStore_Reopen(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "bamboo-filestore-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	kp := testKeypair(t, 1)
	feed := FeedID{Author: kp.Public, LogID: 2}

	store, err := OpenFileStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	entries, payloads := fillStore(t, store, kp, 2, 5)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, kp.Public.String()+"-2.feed")); err != nil {
		t.Fatalf("feed file missing: %v", err)
	}

	store, err = OpenFileStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	last, err := store.Last(feed)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if last != 5 {
		t.Fatalf("Expected last seq 5 after reopen, got %d", last)
	}
	got, err := store.Get(feed, 5)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got.Entry, entries[4]) || !bytes.Equal(got.Payload, payloads[4]) {
		t.Error("entry changed across reopen")
	}

	// Appends continue where the file left off.
	more, _ := buildLog(t, kp, 2, 6)
	if err := store.Append(StoredEntry{Feed: feed, SeqNum: 6, Entry: more[5]}); err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
}

func TestFileStore_TruncatedFrame(t *testing.T) {
	tmpDir := t.TempDir()
	kp := testKeypair(t, 1)
	feed := FeedID{Author: kp.Public, LogID: 0}

	store, err := OpenFileStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	fillStore(t, store, kp, 0, 2)
	_ = store.Close()

	path := filepath.Join(tmpDir, kp.Public.String()+"-0.feed")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, info.Size()-3); err != nil {
		t.Fatal(err)
	}

	store, err = OpenFileStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.Last(feed); err == nil {
		t.Error("Expected error reading a truncated feed file")
	}
}

func TestFileStore_GetUsesOffsetIndex(t *testing.T) {
	tmpDir := t.TempDir()
	kp := testKeypair(t, 1)
	feed := FeedID{Author: kp.Public, LogID: 0}

	store, err := OpenFileStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	entries, payloads := fillStore(t, store, kp, 0, 5)

	ff := store.(*fileStore).files[feed]
	if len(ff.offsets) != 5 || ff.offsets[0] != 0 {
		t.Fatalf("offset index = %v", ff.offsets)
	}
	for i := 1; i < len(ff.offsets); i++ {
		if ff.offsets[i] <= ff.offsets[i-1] {
			t.Fatalf("offsets not increasing: %v", ff.offsets)
		}
	}

	// Clobber the first frame on disk. Lookups past it seek straight to their
	// own frame and never read it.
	f, err := os.OpenFile(filepath.Join(tmpDir, kp.Public.String()+"-0.feed"), os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt(bytes.Repeat([]byte{0xff}, frameHeaderSize), 0); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	for _, seq := range []uint64{2, 5} {
		got, err := store.Get(feed, seq)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", seq, err)
		}
		if !bytes.Equal(got.Entry, entries[seq-1]) || !bytes.Equal(got.Payload, payloads[seq-1]) {
			t.Errorf("Get(%d) returned the wrong frame", seq)
		}
	}
	tail, err := collect(store, feed, 3)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(tail) != 3 || tail[0].SeqNum != 3 {
		t.Errorf("Iter from 3 yielded %d entries", len(tail))
	}
	if _, err := store.Get(feed, 1); err == nil {
		t.Error("Expected error reading the clobbered frame")
	}
}
