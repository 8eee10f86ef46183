package bamboo

import (
	"crypto/ed25519"
	"crypto/subtle"
	"fmt"
)

// Verify checks entry against the payload it claims and the encoded entries
// its links reference, returning nil when every claim holds. backlink is the
// encoded entry at SeqNum-1 and lipmaa the encoded entry at
// LipmaaAncestor(SeqNum); either is ignored when the entry has no such link.
//
// Checks run in a fixed order and the first failure wins: signature,
// payload, backlink, lipmaa link. The returned error carries a VerifyError.
func Verify(entry *Entry, payload, backlink, lipmaa []byte) error {
	return verify(entry, payload, true, backlink, lipmaa)
}

// verify is Verify with the payload checks optional, for entries whose
// payload was not replicated.
func verify(entry *Entry, payload []byte, checkPayload bool, backlink, lipmaa []byte) error {
	if entry == nil {
		return VerifyUnknownError
	}

	if err := entry.VerifySignature(); err != nil {
		return err
	}

	if checkPayload {
		if Sum(payload) != entry.PayloadHash {
			return VerifyPayloadHashDidNotMatch
		}
		if uint64(len(payload)) != entry.PayloadSize {
			return VerifyPayloadLengthDidNotMatch
		}
	}

	if entry.SeqNum > 1 {
		if err := verifyBacklink(entry, backlink); err != nil {
			return err
		}
	}
	if RequiresSkipLink(entry.SeqNum) {
		if err := verifyLipmaaLink(entry, lipmaa); err != nil {
			return err
		}
	}
	return nil
}

// VerifyBytes decodes entryBytes and verifies it as Verify does. A buffer that
// does not decode is reported as VerifyDecodeEntry.
func VerifyBytes(entryBytes, payload, backlink, lipmaa []byte) error {
	entry, err := Decode(entryBytes)
	if err != nil {
		return wrap(VerifyDecodeEntry, err)
	}
	return Verify(&entry, payload, backlink, lipmaa)
}

// VerifySignature checks that e's signature is an ed25519 signature by
// e.Author over e's canonical signing encoding.
func (e *Entry) VerifySignature() error {
	if !e.Sig.wellFormed() {
		return VerifyDecodeSigError
	}
	var buf [MaxEntrySize]byte
	n, err := e.EncodeForSigning(buf[:])
	if err != nil {
		return wrap(VerifyEncodeEntryForSigning, err)
	}
	if !ed25519.Verify(e.Author[:], buf[:n], e.Sig[:]) {
		return VerifyInvalidSignature
	}
	return nil
}

func verifyBacklink(entry *Entry, encoded []byte) error {
	if encoded == nil {
		return VerifyBackLinkRequired
	}
	linked, err := Decode(encoded)
	if err != nil {
		return wrap(VerifyDecodeBacklinkEntry, err)
	}
	if linked.LogID != entry.LogID {
		return VerifyBacklinkLogIDDoesNotMatch
	}
	if linked.Author != entry.Author {
		return VerifyBacklinkAuthorDoesNotMatch
	}
	if linked.IsEndOfFeed {
		return VerifyPublishedAfterEndOfFeed
	}
	h, err := linked.Hash()
	if err != nil {
		return wrap(VerifyEncodeEntryForSigning, err)
	}
	if !entry.Backlink.Valid || !hashEqual(h, entry.Backlink.Hash) {
		return VerifyBacklinkHashDoesNotMatch
	}
	return nil
}

func verifyLipmaaLink(entry *Entry, encoded []byte) error {
	if encoded == nil {
		return VerifyLipmaaLinkRequired
	}
	linked, err := Decode(encoded)
	if err != nil {
		return wrap(VerifyDecodeLipmaaEntry, err)
	}
	if linked.LogID != entry.LogID {
		return VerifyLipmaaLogIDDoesNotMatch
	}
	if linked.Author != entry.Author {
		return VerifyLipmaaAuthorDoesNotMatch
	}
	h, err := linked.Hash()
	if err != nil {
		return wrap(VerifyEncodeEntryForSigning, err)
	}
	if !entry.LipmaaLink.Valid || !hashEqual(h, entry.LipmaaLink.Hash) {
		return VerifyLipmaaHashDoesNotMatch
	}
	return nil
}

func hashEqual(a, b Hash) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// VerifyCertificate checks a certificate pool: the encoded entries on the
// lipmaa path from an entry down to the first entry of its log, in the order
// CertificatePath lists them. Each entry's signature is checked, then its
// lipmaa link (its backlink where the two coincide) against the next entry,
// and the last entry must be the log's first. Payloads are not checked.
// A nil return proves entries[0] belongs to the log started by the last entry.
func VerifyCertificate(entries [][]byte) error {
	if len(entries) == 0 {
		return VerifyLipmaaLinkRequired
	}
	decoded := make([]Entry, len(entries))
	for i, b := range entries {
		e, err := Decode(b)
		if err != nil {
			if i == 0 {
				return wrap(VerifyDecodeEntry, err)
			}
			return fmt.Errorf("certificate entry %d: %w", i, wrap(VerifyDecodeLipmaaEntry, err))
		}
		if err := e.VerifySignature(); err != nil {
			return fmt.Errorf("certificate seq %d: %w", e.SeqNum, err)
		}
		decoded[i] = e
	}

	for i := 0; i+1 < len(decoded); i++ {
		e, linked := &decoded[i], &decoded[i+1]
		if err := checkCertificateLink(e, linked, entries[i+1]); err != nil {
			return fmt.Errorf("certificate seq %d: %w", e.SeqNum, err)
		}
	}
	if tail := decoded[len(decoded)-1]; tail.SeqNum != 1 {
		return fmt.Errorf("certificate ends at seq %d: %w", tail.SeqNum, VerifyLipmaaLinkRequired)
	}
	return nil
}

func checkCertificateLink(e, linked *Entry, encoded []byte) error {
	if linked.LogID != e.LogID {
		return VerifyLipmaaLogIDDoesNotMatch
	}
	if linked.Author != e.Author {
		return VerifyLipmaaAuthorDoesNotMatch
	}
	if linked.IsEndOfFeed {
		return VerifyPublishedAfterEndOfFeed
	}
	link := e.LipmaaLink
	if !RequiresSkipLink(e.SeqNum) {
		link = e.Backlink
	}
	if linked.SeqNum != LipmaaAncestor(e.SeqNum) || !link.Valid || !hashEqual(Sum(encoded), link.Hash) {
		return VerifyLipmaaHashDoesNotMatch
	}
	return nil
}
