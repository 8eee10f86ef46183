package bamboo

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestWriterPublish(t *testing.T) {
	kp := testKeypair(t, 1)
	st := NewMemoryStore()
	defer st.Close()

	w, err := NewWriter(Config{Keypair: &kp}, st)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if w.Author() != kp.Public {
		t.Errorf("Author = %s, want %s", w.Author(), kp.Public)
	}

	want, _ := buildLog(t, kp, 0, 20)
	for i := range want {
		got, err := w.Publish(0, []byte(fmt.Sprintf("payload %d", i+1)), false)
		if err != nil {
			t.Fatalf("Publish seq %d failed: %v", i+1, err)
		}
		if !bytes.Equal(got, want[i]) {
			t.Fatalf("seq %d differs from a directly published entry", i+1)
		}
	}

	feed := FeedID{Author: kp.Public, LogID: 0}
	if last, _ := st.Last(feed); last != 20 {
		t.Errorf("store holds %d entries, want 20", last)
	}
}

func TestWriterEndOfFeed(t *testing.T) {
	kp := testKeypair(t, 1)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	w, err := NewWriter(Config{Keypair: &kp, Logger: logger}, NewMemoryStore())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := w.Publish(4, []byte("only"), false); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if _, err := w.Close(4, []byte("bye")); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err = w.Publish(4, []byte("more"), false)
	if PublishErrorOf(err) != PublishAfterEndOfFeed {
		t.Fatalf("Publish after Close error = %v, want %v", err, PublishAfterEndOfFeed)
	}

	// Other logs of the same author stay open.
	if _, err := w.Publish(5, []byte("elsewhere"), false); err != nil {
		t.Fatalf("Publish to another log failed: %v", err)
	}

	var sawClose, sawReject bool
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "published end of feed":
			sawClose = e.Data["log_id"] == uint64(4) && e.Data["seq"] == uint64(2)
		case "publish rejected":
			sawReject = true
		}
	}
	if !sawClose || !sawReject {
		t.Errorf("missing log events: close=%v reject=%v", sawClose, sawReject)
	}
}

func TestWriterConcurrentPublish(t *testing.T) {
	kp := testKeypair(t, 1)
	st := NewMemoryStore()
	w, err := NewWriter(Config{Keypair: &kp}, st)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := w.Publish(uint64(g%2), []byte(fmt.Sprintf("%d-%d", g, i)), false); err != nil {
					t.Errorf("Publish failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	r, err := NewReplica(Config{}, st)
	if err != nil {
		t.Fatalf("NewReplica failed: %v", err)
	}
	for _, logID := range []uint64{0, 1} {
		feed := FeedID{Author: kp.Public, LogID: logID}
		if last, _ := st.Last(feed); last != 40 {
			t.Errorf("log %d holds %d entries, want 40", logID, last)
		}
		if err := r.VerifyFeed(context.Background(), feed); err != nil {
			t.Errorf("log %d failed to verify: %v", logID, err)
		}
	}
}

func TestNewWriterRejects(t *testing.T) {
	kp := testKeypair(t, 1)
	if _, err := NewWriter(Config{}, NewMemoryStore()); err == nil {
		t.Error("Expected error without keypair")
	}
	if _, err := NewWriter(Config{Keypair: &kp}, nil); err == nil {
		t.Error("Expected error without store")
	}
	bad := kp
	bad.Public = testKeypair(t, 2).Public
	if _, err := NewWriter(Config{Keypair: &bad}, NewMemoryStore()); err == nil {
		t.Error("Expected error for mismatched keypair")
	}
}
