package bamboo

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Bundle field numbers.
//
//	message Bundle { repeated Item items = 1; }
//	message Item   { bytes entry = 1; bytes payload = 2; bool has_payload = 3; }
const (
	bundleItemsField    protowire.Number = 1
	itemEntryField      protowire.Number = 1
	itemPayloadField    protowire.Number = 2
	itemHasPayloadField protowire.Number = 3
)

var errBundleItemNoEntry = errors.New("bundle item has no entry")

// BundleItem is one encoded entry and, when replicated, its payload. A nil
// Payload means the payload is absent.
type BundleItem struct {
	Entry   []byte
	Payload []byte
}

// MarshalBundle encodes items in protobuf wire format.
func MarshalBundle(items []BundleItem) []byte {
	var b []byte
	for _, it := range items {
		b = protowire.AppendTag(b, bundleItemsField, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalItem(it))
	}
	return b
}

func marshalItem(it BundleItem) []byte {
	var b []byte
	b = protowire.AppendTag(b, itemEntryField, protowire.BytesType)
	b = protowire.AppendBytes(b, it.Entry)
	if it.Payload != nil {
		b = protowire.AppendTag(b, itemPayloadField, protowire.BytesType)
		b = protowire.AppendBytes(b, it.Payload)
		b = protowire.AppendTag(b, itemHasPayloadField, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

// UnmarshalBundle decodes a bundle produced by MarshalBundle. Unknown fields
// are skipped. The returned items do not alias b.
func UnmarshalBundle(b []byte) ([]BundleItem, error) {
	var items []BundleItem
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("bundle: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if num != bundleItemsField || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("bundle: %w", protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("bundle: %w", protowire.ParseError(n))
		}
		b = b[n:]
		it, err := unmarshalItem(v)
		if err != nil {
			return nil, fmt.Errorf("bundle item %d: %w", len(items), err)
		}
		items = append(items, it)
	}
	return items, nil
}

func unmarshalItem(b []byte) (BundleItem, error) {
	var (
		it         BundleItem
		payload    []byte
		hasPayload bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return it, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == itemEntryField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return it, protowire.ParseError(n)
			}
			it.Entry = append([]byte{}, v...)
			b = b[n:]
		case num == itemPayloadField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return it, protowire.ParseError(n)
			}
			payload = append([]byte{}, v...)
			b = b[n:]
		case num == itemHasPayloadField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return it, protowire.ParseError(n)
			}
			hasPayload = protowire.DecodeBool(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return it, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if len(it.Entry) == 0 {
		return it, errBundleItemNoEntry
	}
	if hasPayload {
		if payload == nil {
			payload = []byte{}
		}
		it.Payload = payload
	}
	return it, nil
}
