package bamboo

// blockLen[k] is (3^k - 1) / 2, the length of a complete level-k block of the
// skip list. pow3[k] is 3^k. Both tables stop at the last value that fits in a
// uint64.
var (
	blockLen [42]uint64
	pow3     [41]uint64
)

func init() {
	pow3[0] = 1
	for k := 1; k < len(blockLen); k++ {
		blockLen[k] = 3*blockLen[k-1] + 1
		if k < len(pow3) {
			pow3[k] = 3 * pow3[k-1]
		}
	}
}

// LipmaaAncestor returns the sequence number that seq links to with its
// lipmaa link, using the skip-list numbering of the bamboo format. It returns
// 0 for sequence numbers 0 and 1, which have no ancestor.
func LipmaaAncestor(seq uint64) uint64 {
	if seq <= 1 {
		return 0
	}

	// Find the smallest complete block that covers seq. When seq exceeds the
	// largest representable block, k ends one past the table.
	k := 1
	for k < len(blockLen) && blockLen[k] < seq {
		k++
	}
	if k < len(blockLen) && blockLen[k] == seq {
		return seq - pow3[k-1]
	}

	// Descend through the sub-blocks that contain seq.
	var m, p uint64
	x := seq
	for j := k - 1; x != 0; j-- {
		m = blockLen[j]
		p = pow3[j-1]
		x %= m
	}
	if m != p {
		p = m
	}
	return seq - p
}

// RequiresSkipLink reports whether an entry at seq must carry a lipmaa link
// distinct from its backlink.
func RequiresSkipLink(seq uint64) bool {
	if seq <= 1 {
		return false
	}
	return LipmaaAncestor(seq) != seq-1
}

// CertificatePath returns the sequence numbers visited by following lipmaa
// links from seq down to the first entry, starting with seq itself. The
// entries at these positions form the certificate VerifyCertificate checks.
func CertificatePath(seq uint64) []uint64 {
	if seq == 0 {
		return nil
	}
	path := []uint64{seq}
	for seq > 1 {
		seq = LipmaaAncestor(seq)
		path = append(path, seq)
	}
	return path
}

// LinkPath returns the sequence numbers on a hop path from the later entry
// from back to the earlier entry to, inclusive of both ends. Each hop takes the
// lipmaa link when it does not jump past to, else the backlink.
// It returns nil when to is zero or greater than from.
func LinkPath(from, to uint64) []uint64 {
	if to == 0 || to > from {
		return nil
	}
	path := []uint64{from}
	for from > to {
		if l := LipmaaAncestor(from); l >= to {
			from = l
		} else {
			from--
		}
		path = append(path, from)
	}
	return path
}
