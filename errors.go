package bamboo

import (
	"errors"
	"fmt"
)

// DecodeError is the reason Decode rejected a buffer. The zero value means no
// error. Discriminant values are stable and match the C interface of the
// format's reference library.
type DecodeError uint8

const (
	DecodeNoError DecodeError = iota
	DecodePayloadHashError
	DecodePayloadSizeError
	DecodeLogIDError
	DecodeAuthorError
	DecodeSeqError
	DecodeSeqIsZero
	DecodeBacklinkError
	DecodeLipmaaError
	DecodeSigError
	DecodeInputIsLengthZero
)

var decodeErrorText = [...]string{
	DecodeNoError:           "no error",
	DecodePayloadHashError:  "could not decode payload hash",
	DecodePayloadSizeError:  "could not decode payload size",
	DecodeLogIDError:        "could not decode log id",
	DecodeAuthorError:       "could not decode author public key",
	DecodeSeqError:          "could not decode sequence number",
	DecodeSeqIsZero:         "sequence number must be larger than 0",
	DecodeBacklinkError:     "could not decode backlink",
	DecodeLipmaaError:       "could not decode lipmaa link",
	DecodeSigError:          "could not decode signature",
	DecodeInputIsLengthZero: "bytes to decode had length of 0",
}

func (e DecodeError) Error() string {
	if int(e) < len(decodeErrorText) {
		return "decode: " + decodeErrorText[e]
	}
	return fmt.Sprintf("decode: unknown error %d", uint8(e))
}

// PublishError is the reason Publish refused to produce an entry. The zero
// value means no error.
type PublishError uint8

const (
	PublishNoError PublishError = iota
	PublishWithInvalidKeypair
	PublishAfterEndOfFeed
	PublishWithIncorrectLogID
	PublishWithoutSecretKey
	PublishWithoutLipmaaEntry
	PublishWithoutBacklinkEntry
	PublishDecodeBacklinkEntry
	PublishEncodeEntryToOutBuffer
	PublishKeypairDidNotMatchBacklinkPublicKey
	PublishKeypairDidNotMatchLipmaaLinkPublicKey
	PublishDecodeLipmaaEntry
	PublishWithIncorrectBacklinkLogID
	PublishWithIncorrectLipmaaLinkLogID
)

var publishErrorText = [...]string{
	PublishNoError:                               "no error",
	PublishWithInvalidKeypair:                    "keypair is not valid",
	PublishAfterEndOfFeed:                        "attempted to publish after the end of the feed",
	PublishWithIncorrectLogID:                    "linked entry has a different log id",
	PublishWithoutSecretKey:                      "attempted to publish without a secret key",
	PublishWithoutLipmaaEntry:                    "lipmaa entry is required but was not provided",
	PublishWithoutBacklinkEntry:                  "backlink entry is required but was not provided",
	PublishDecodeBacklinkEntry:                   "could not decode backlink entry",
	PublishEncodeEntryToOutBuffer:                "could not encode entry into the output buffer",
	PublishKeypairDidNotMatchBacklinkPublicKey:   "keypair does not match the backlink entry author",
	PublishKeypairDidNotMatchLipmaaLinkPublicKey: "keypair does not match the lipmaa entry author",
	PublishDecodeLipmaaEntry:                     "could not decode lipmaa entry",
	PublishWithIncorrectBacklinkLogID:            "backlink entry has a different log id",
	PublishWithIncorrectLipmaaLinkLogID:          "lipmaa entry has a different log id",
}

func (e PublishError) Error() string {
	if int(e) < len(publishErrorText) {
		return "publish: " + publishErrorText[e]
	}
	return fmt.Sprintf("publish: unknown error %d", uint8(e))
}

// Is makes both link-specific log id errors match PublishWithIncorrectLogID.
func (e PublishError) Is(target error) bool {
	t, ok := target.(PublishError)
	if !ok {
		return false
	}
	if t == PublishWithIncorrectLogID {
		return e == PublishWithIncorrectBacklinkLogID || e == PublishWithIncorrectLipmaaLinkLogID
	}
	return false
}

// VerifyError is the reason Verify rejected an entry. The zero value means no
// error.
type VerifyError uint8

const (
	VerifyNoError VerifyError = iota
	VerifyDecodeSigError
	VerifyInvalidSignature
	VerifyPayloadHashDidNotMatch
	VerifyPayloadLengthDidNotMatch
	VerifyLipmaaHashDoesNotMatch
	VerifyDecodeLipmaaEntry
	VerifyLipmaaLogIDDoesNotMatch
	VerifyLipmaaAuthorDoesNotMatch
	VerifyLipmaaLinkRequired
	VerifyDecodeBacklinkEntry
	VerifyBacklinkLogIDDoesNotMatch
	VerifyBacklinkAuthorDoesNotMatch
	VerifyPublishedAfterEndOfFeed
	VerifyBacklinkHashDoesNotMatch
	VerifyBackLinkRequired
	VerifyDecodeEntry
	VerifyEncodeEntryForSigning
	VerifyUnknownError
)

var verifyErrorText = [...]string{
	VerifyNoError:                    "no error",
	VerifyDecodeSigError:             "signature is malformed",
	VerifyInvalidSignature:           "signature is invalid",
	VerifyPayloadHashDidNotMatch:     "payload hash does not match",
	VerifyPayloadLengthDidNotMatch:   "payload length does not match",
	VerifyLipmaaHashDoesNotMatch:     "lipmaa link hash does not match",
	VerifyDecodeLipmaaEntry:          "could not decode lipmaa entry",
	VerifyLipmaaLogIDDoesNotMatch:    "lipmaa entry has a different log id",
	VerifyLipmaaAuthorDoesNotMatch:   "lipmaa entry has a different author",
	VerifyLipmaaLinkRequired:         "lipmaa entry is required",
	VerifyDecodeBacklinkEntry:        "could not decode backlink entry",
	VerifyBacklinkLogIDDoesNotMatch:  "backlink entry has a different log id",
	VerifyBacklinkAuthorDoesNotMatch: "backlink entry has a different author",
	VerifyPublishedAfterEndOfFeed:    "entry was published after the end of the feed",
	VerifyBacklinkHashDoesNotMatch:   "backlink hash does not match",
	VerifyBackLinkRequired:           "backlink entry is required",
	VerifyDecodeEntry:                "could not decode entry",
	VerifyEncodeEntryForSigning:      "could not encode entry for signing",
	VerifyUnknownError:               "unknown error",
}

func (e VerifyError) Error() string {
	if int(e) < len(verifyErrorText) {
		return "verify: " + verifyErrorText[e]
	}
	return fmt.Sprintf("verify: unknown error %d", uint8(e))
}

// DecodeErrorOf returns the DecodeError in err's chain, DecodeNoError for a
// nil err.
func DecodeErrorOf(err error) DecodeError {
	var e DecodeError
	if err == nil || !errors.As(err, &e) {
		return DecodeNoError
	}
	return e
}

// PublishErrorOf returns the PublishError in err's chain, PublishNoError for a
// nil err.
func PublishErrorOf(err error) PublishError {
	var e PublishError
	if err == nil || !errors.As(err, &e) {
		return PublishNoError
	}
	return e
}

// VerifyErrorOf returns the VerifyError in err's chain. A nil err yields
// VerifyNoError; an err from outside the taxonomy yields VerifyUnknownError.
func VerifyErrorOf(err error) VerifyError {
	if err == nil {
		return VerifyNoError
	}
	var e VerifyError
	if !errors.As(err, &e) {
		return VerifyUnknownError
	}
	return e
}

// wrap attaches the cause of a rejection to its discriminant.
func wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
