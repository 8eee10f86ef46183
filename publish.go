package bamboo

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"math"
)

// ErrLogFull reports a log whose last entry has the largest possible
// sequence number.
var ErrLogFull = errors.New("log has no sequence numbers left")

// PublishRequest is everything Publish needs to append one entry to a log.
// Publish holds no log state: the caller supplies the encoded predecessor and
// skip-link entries it has stored.
type PublishRequest struct {
	PublicKey []byte
	// SecretKey is either the 32-byte ed25519 seed or the 64-byte
	// crypto/ed25519 private key.
	SecretKey   []byte
	LogID       uint64
	Payload     []byte
	IsEndOfFeed bool
	// LastSeqNum is the sequence number of the current last entry of the log,
	// 0 when the log is empty.
	LastSeqNum uint64
	// Backlink is the encoded entry at LastSeqNum. Required unless LastSeqNum is 0.
	Backlink []byte
	// Lipmaa is the encoded entry at LipmaaAncestor(LastSeqNum+1). Required
	// only when RequiresSkipLink(LastSeqNum+1).
	Lipmaa []byte
}

// Publish creates, signs and encodes the next entry of a log into out,
// returning the number of bytes written. On failure the contents of out are
// unspecified and the returned error carries a PublishError.
func Publish(out []byte, req PublishRequest) (int, error) {
	priv, author, err := req.keypair()
	if err != nil {
		return 0, err
	}
	if req.LastSeqNum == math.MaxUint64 {
		return 0, wrap(PublishAfterEndOfFeed, ErrLogFull)
	}

	e := Entry{
		LogID:       req.LogID,
		IsEndOfFeed: req.IsEndOfFeed,
		PayloadHash: Sum(req.Payload),
		PayloadSize: uint64(len(req.Payload)),
		Author:      author,
		SeqNum:      req.LastSeqNum + 1,
	}

	if e.SeqNum > 1 {
		h, err := checkPublishLink(req.Backlink, &e, linkBacklink)
		if err != nil {
			return 0, err
		}
		e.Backlink = LinkTo(h)
	}
	if RequiresSkipLink(e.SeqNum) {
		h, err := checkPublishLink(req.Lipmaa, &e, linkLipmaa)
		if err != nil {
			return 0, err
		}
		e.LipmaaLink = LinkTo(h)
	}

	if len(out) < e.EncodedSize() {
		return 0, wrap(PublishEncodeEntryToOutBuffer, ErrBufferTooSmall)
	}
	n, err := e.EncodeForSigning(out)
	if err != nil {
		return 0, wrap(PublishEncodeEntryToOutBuffer, err)
	}
	copy(e.Sig[:], ed25519.Sign(priv, out[:n]))
	n += copy(out[n:], e.Sig[:])
	return n, nil
}

// PublishEntry is Publish into a freshly allocated buffer.
func PublishEntry(req PublishRequest) ([]byte, error) {
	out := make([]byte, MaxEntrySize)
	n, err := Publish(out, req)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// keypair validates the request's keys and expands the secret key.
func (req *PublishRequest) keypair() (ed25519.PrivateKey, PublicKey, error) {
	var author PublicKey
	if len(req.SecretKey) == 0 {
		return nil, author, PublishWithoutSecretKey
	}
	if len(req.PublicKey) != PublicKeySize {
		return nil, author, PublishWithInvalidKeypair
	}

	var priv ed25519.PrivateKey
	switch len(req.SecretKey) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(req.SecretKey)
	case ed25519.PrivateKeySize:
		priv = ed25519.NewKeyFromSeed(req.SecretKey[:ed25519.SeedSize])
		if !bytes.Equal(priv, req.SecretKey) {
			return nil, author, PublishWithInvalidKeypair
		}
	default:
		return nil, author, PublishWithInvalidKeypair
	}
	if !bytes.Equal(priv[ed25519.SeedSize:], req.PublicKey) {
		return nil, author, PublishWithInvalidKeypair
	}
	copy(author[:], req.PublicKey)
	return priv, author, nil
}

type linkKind int

const (
	linkBacklink linkKind = iota
	linkLipmaa
)

// publishLinkErrors maps each link check to its error for both link kinds.
var publishLinkErrors = [...]struct {
	missing, decode, logID, author PublishError
}{
	linkBacklink: {
		missing: PublishWithoutBacklinkEntry,
		decode:  PublishDecodeBacklinkEntry,
		logID:   PublishWithIncorrectBacklinkLogID,
		author:  PublishKeypairDidNotMatchBacklinkPublicKey,
	},
	linkLipmaa: {
		missing: PublishWithoutLipmaaEntry,
		decode:  PublishDecodeLipmaaEntry,
		logID:   PublishWithIncorrectLipmaaLinkLogID,
		author:  PublishKeypairDidNotMatchLipmaaLinkPublicKey,
	},
}

// checkPublishLink decodes a linked entry, checks it may be linked from e and
// returns its hash.
func checkPublishLink(encoded []byte, e *Entry, kind linkKind) (Hash, error) {
	errs := publishLinkErrors[kind]
	if encoded == nil {
		return Hash{}, errs.missing
	}
	linked, err := Decode(encoded)
	if err != nil {
		return Hash{}, wrap(errs.decode, err)
	}
	if kind == linkBacklink {
		if linked.SeqNum != e.SeqNum-1 {
			return Hash{}, errs.missing
		}
		if linked.IsEndOfFeed {
			return Hash{}, PublishAfterEndOfFeed
		}
	}
	if linked.LogID != e.LogID {
		return Hash{}, errs.logID
	}
	if linked.Author != e.Author {
		return Hash{}, errs.author
	}
	return Sum(encoded), nil
}
