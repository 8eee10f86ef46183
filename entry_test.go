package bamboo

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestMaxEntrySize(t *testing.T) {
	if MaxEntrySize != 226 {
		t.Fatalf("MaxEntrySize = %d, want 226", MaxEntrySize)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	kp := testKeypair(t, 1)
	entries, payloads := buildLog(t, kp, 0, 13)

	wantSize := map[int]int{1: 134, 2: 168, 3: 168, 4: 202, 13: 202}
	for i, b := range entries {
		seq := uint64(i + 1)
		if w, ok := wantSize[i+1]; ok && len(b) != w {
			t.Errorf("seq %d encoded to %d bytes, want %d", seq, len(b), w)
		}

		e := mustDecode(t, b)
		if e.SeqNum != seq || e.LogID != 0 || e.Author != kp.Public || e.IsEndOfFeed {
			t.Errorf("seq %d decoded header = %+v", seq, e)
		}
		if e.PayloadSize != uint64(len(payloads[i])) || e.PayloadHash != Sum(payloads[i]) {
			t.Errorf("seq %d payload fields mismatch", seq)
		}
		if e.Backlink.Valid != (seq > 1) {
			t.Errorf("seq %d backlink presence = %v", seq, e.Backlink.Valid)
		}
		if e.LipmaaLink.Valid != RequiresSkipLink(seq) {
			t.Errorf("seq %d lipmaa presence = %v", seq, e.LipmaaLink.Valid)
		}
		if seq > 1 && e.Backlink.Hash != Sum(entries[i-1]) {
			t.Errorf("seq %d backlink does not hash the previous entry", seq)
		}

		again, err := e.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary failed: %v", err)
		}
		if !bytes.Equal(again, b) {
			t.Errorf("seq %d re-encoding differs", seq)
		}
		if e.EncodedSize() != len(b) {
			t.Errorf("seq %d EncodedSize = %d, want %d", seq, e.EncodedSize(), len(b))
		}
		h, err := e.Hash()
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}
		if h != Sum(b) {
			t.Errorf("seq %d Hash differs from hash of encoding", seq)
		}

		var viaUnmarshal Entry
		if err := viaUnmarshal.UnmarshalBinary(b); err != nil {
			t.Fatalf("UnmarshalBinary failed: %v", err)
		}
		if viaUnmarshal != e {
			t.Errorf("seq %d UnmarshalBinary differs from Decode", seq)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	kp := testKeypair(t, 2)
	entries, _ := buildLog(t, kp, 0, 4)
	valid := entries[3] // seq 4 carries both links
	if len(valid) != 202 {
		t.Fatalf("seq 4 entry is %d bytes, want 202", len(valid))
	}

	with := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), valid...))
	}
	set := func(i int, v byte) []byte {
		return with(func(b []byte) []byte { b[i] = v; return b })
	}
	offAuthor := invalidAuthor()

	tests := []struct {
		name string
		in   []byte
		want DecodeError
	}{
		{"empty", nil, DecodeInputIsLengthZero},
		{"end of feed byte", set(0, 2), DecodePayloadHashError},
		{"short author", valid[:20], DecodeAuthorError},
		{"author not a point", with(func(b []byte) []byte { copy(b[1:], offAuthor[:]); return b }), DecodeAuthorError},
		{"missing log id", valid[:33], DecodeLogIDError},
		{"missing seq", valid[:34], DecodeSeqError},
		{"seq zero", set(34, 0), DecodeSeqIsZero},
		{"lipmaa hash type", set(35, 1), DecodeLipmaaError},
		{"backlink digest length", set(70, 31), DecodeBacklinkError},
		{"truncated backlink", valid[:80], DecodeBacklinkError},
		{"payload size non-canonical", with(func(b []byte) []byte {
			return append(append(append([]byte(nil), b[:103]...), 0xf8, 0x05), b[104:]...)
		}), DecodePayloadSizeError},
		{"payload hash type", set(104, 5), DecodePayloadHashError},
		{"short signature", valid[:201], DecodeSigError},
		{"trailing byte", with(func(b []byte) []byte { return append(b, 0) }), DecodeSigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Decode(tt.in)
			if got := DecodeErrorOf(err); got != tt.want {
				t.Fatalf("Decode error = %v (%v), want %v", got, err, tt.want)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
			if e != (Entry{}) {
				t.Errorf("Decode returned a partial entry on error")
			}
		})
	}
}

func TestDecodeAbsurdPayloadSize(t *testing.T) {
	kp := testKeypair(t, 3)
	entries, _ := buildLog(t, kp, 0, 1)
	e := mustDecode(t, entries[0])
	e.PayloadSize = math.MaxUint64
	b, err := e.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if _, err := Decode(b); DecodeErrorOf(err) != DecodePayloadSizeError {
		t.Fatalf("Decode error = %v, want %v", err, DecodePayloadSizeError)
	}
}

func TestEncodeErrors(t *testing.T) {
	h := LinkTo(Sum([]byte("x")))
	tests := []struct {
		name  string
		entry Entry
		want  error
	}{
		{"seq zero", Entry{}, ErrSeqIsZero},
		{"first entry with backlink", Entry{SeqNum: 1, Backlink: h}, ErrLinksInconsistent},
		{"missing backlink", Entry{SeqNum: 2}, ErrLinksInconsistent},
		{"missing lipmaa link", Entry{SeqNum: 4, Backlink: h}, ErrLinksInconsistent},
		{"unexpected lipmaa link", Entry{SeqNum: 3, Backlink: h, LipmaaLink: h}, ErrLinksInconsistent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [MaxEntrySize]byte
			if _, err := tt.entry.Encode(buf[:]); !errors.Is(err, tt.want) {
				t.Errorf("Encode error = %v, want %v", err, tt.want)
			}
		})
	}

	e := Entry{SeqNum: 1}
	if _, err := e.Encode(make([]byte, e.EncodedSize()-1)); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("Encode into short buffer error = %v, want %v", err, ErrBufferTooSmall)
	}
}

func TestEntryJSON(t *testing.T) {
	kp := testKeypair(t, 4)
	entries, _ := buildLog(t, kp, 7, 2)
	e := mustDecode(t, entries[1])

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}
	if fields["author"] != kp.Public.String() {
		t.Errorf("author = %v, want %s", fields["author"], kp.Public)
	}
	if fields["backlink"] != Sum(entries[0]).String() {
		t.Errorf("backlink = %v", fields["backlink"])
	}
	if fields["lipmaaLink"] != nil {
		t.Errorf("lipmaaLink = %v, want null", fields["lipmaaLink"])
	}
	if fields["logId"] != float64(7) || fields["seqNum"] != float64(2) {
		t.Errorf("logId/seqNum = %v/%v", fields["logId"], fields["seqNum"])
	}

	var back Entry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Entry.UnmarshalJSON failed: %v", err)
	}
	if back != e {
		t.Errorf("JSON round trip changed the entry")
	}
}

// invalidAuthor returns 32 bytes that are not the encoding of a curve point.
func invalidAuthor() [PublicKeySize]byte {
	var b [PublicKeySize]byte
	b[0] = 2
	return b
}
