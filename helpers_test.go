package bamboo

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"testing"
)

func testKeypair(t *testing.T, b byte) Keypair {
	t.Helper()
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{b}, SecretKeySize))
	if err != nil {
		t.Fatalf("KeypairFromSeed failed: %v", err)
	}
	return kp
}

// nextRequest builds the request that appends payload to log, whose encoded
// entries so far are entries.
func nextRequest(kp Keypair, logID uint64, payload []byte, entries [][]byte) PublishRequest {
	req := PublishRequest{
		PublicKey:  kp.Public[:],
		SecretKey:  kp.Secret[:],
		LogID:      logID,
		Payload:    payload,
		LastSeqNum: uint64(len(entries)),
	}
	if n := len(entries); n > 0 {
		req.Backlink = entries[n-1]
	}
	if seq := req.LastSeqNum + 1; RequiresSkipLink(seq) {
		req.Lipmaa = entries[LipmaaAncestor(seq)-1]
	}
	return req
}

// buildLog publishes n entries with distinct payloads.
func buildLog(t *testing.T, kp Keypair, logID uint64, n int) (entries, payloads [][]byte) {
	t.Helper()
	for i := 0; i < n; i++ {
		payload := []byte(fmt.Sprintf("payload %d", i+1))
		entry, err := PublishEntry(nextRequest(kp, logID, payload, entries))
		if err != nil {
			t.Fatalf("PublishEntry seq %d failed: %v", i+1, err)
		}
		entries = append(entries, entry)
		payloads = append(payloads, payload)
	}
	return entries, payloads
}

func mustDecode(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return e
}

// resign signs e with kp and returns its encoding.
func resign(t *testing.T, kp Keypair, e Entry) []byte {
	t.Helper()
	var buf [MaxEntrySize]byte
	n, err := e.EncodeForSigning(buf[:])
	if err != nil {
		t.Fatalf("EncodeForSigning failed: %v", err)
	}
	priv := ed25519.NewKeyFromSeed(kp.Secret[:])
	copy(e.Sig[:], ed25519.Sign(priv, buf[:n]))
	out, err := e.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	return out
}
