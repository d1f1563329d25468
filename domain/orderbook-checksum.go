package domain

import (
	"hash/crc32"
	"strings"
)

// Number of levels per side covered by the exchange's book digest,
// regardless of the subscribed depth.
const checksumDepth = 10

// Checksum reproduces the exchange's book digest: the top ten ask levels
// ascending, then the top ten bid levels descending, each contributing
// price then volume formatted from the original wire strings. The digest
// is CRC-32 (IEEE) over the concatenation.
func (ob *OrderBook) Checksum() uint32 {
	var sb strings.Builder

	count := 0
	ob.Asks.Scan(func(entry BookEntry) bool {
		sb.WriteString(checksumField(entry.PriceStr))
		sb.WriteString(checksumField(entry.VolumeStr))
		count++
		return count < checksumDepth
	})

	count = 0
	ob.Bids.Reverse(func(entry BookEntry) bool {
		sb.WriteString(checksumField(entry.PriceStr))
		sb.WriteString(checksumField(entry.VolumeStr))
		count++
		return count < checksumDepth
	})

	return crc32.ChecksumIEEE([]byte(sb.String()))
}

// VerifyChecksum compares the computed digest against the one sent by the
// exchange. A mismatch means the mirror diverged from the authoritative
// book.
func (ob *OrderBook) VerifyChecksum(expected uint32) bool {
	return ob.Checksum() == expected
}

// checksumField renders one numeric field for hashing: drop the decimal
// point, strip leading zeros. The formatting is part of the exchange's
// algorithm; any deviation produces systematic mismatches.
func checksumField(s string) string {
	s = strings.ReplaceAll(s, ".", "")
	return strings.TrimLeft(s, "0")
}
