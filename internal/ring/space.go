// Package ring implements the Chord identifier space: fixed-width
// big-endian identifiers on a circular ring of size 2^Bits, and the
// arithmetic and ordering predicates the rest of the DHT core builds on.
package ring

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidID is returned whenever a byte slice does not represent a
// valid identifier for a given Space.
var ErrInvalidID = errors.New("invalid id")

// Space defines the identifier space of a Chord ring: M = 2^Bits
// identifiers, m = Bits finger-table rows, and the successor list length
// R maintained per node for fault tolerance.
type Space struct {
	Bits         int // m: number of finger-table rows, M = 2^Bits
	ByteLen      int // ceil(Bits/8)
	SuccListSize int // R: successor list length
}

// NewSpace builds a Space for a ring of 2^b identifiers with a successor
// list of length succListSize. Reference values from the design are
// b=7 (M=128) and succListSize=5.
func NewSpace(b int, succListSize int) (Space, error) {
	if b <= 0 {
		return Space{}, fmt.Errorf("invalid identifier bits: %d (must be > 0)", b)
	}
	if succListSize <= 0 {
		return Space{}, fmt.Errorf("invalid successor list size: %d (must be > 0)", succListSize)
	}
	return Space{
		Bits:         b,
		ByteLen:      (b + 7) / 8,
		SuccListSize: succListSize,
	}, nil
}

// M returns 2^Bits as a big.Int, the size of the ring.
func (sp Space) M() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(sp.Bits))
}

// ID is a ring identifier, stored big-endian.
type ID []byte

// Zero returns the all-zero identifier for this space.
func (sp Space) Zero() ID {
	return make(ID, sp.ByteLen)
}

// NewIDFromString derives an identifier from an arbitrary string (a node's
// "host:port" address, or a backup key) by taking the most significant
// bytes of its SHA-1 digest and masking off any non-byte-aligned high bits.
func (sp Space) NewIDFromString(s string) ID {
	h := sha1.Sum([]byte(s))
	buf := make([]byte, sp.ByteLen)
	copy(buf, h[:sp.ByteLen])
	sp.mask(buf)
	return buf
}

func (sp Space) mask(buf []byte) {
	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		buf[0] &= 0xFF >> uint(extraBits)
	}
}

// IsValidID reports whether id has the right length and no non-byte-aligned
// high bits set.
func (sp Space) IsValidID(id []byte) error {
	if len(id) != sp.ByteLen {
		return ErrInvalidID
	}
	extraBits := sp.ByteLen*8 - sp.Bits
	if extraBits > 0 {
		mask := byte(0xFF << uint(8-extraBits))
		if id[0]&mask != 0 {
			return ErrInvalidID
		}
	}
	return nil
}

// String renders x as unprefixed lowercase hex, satisfying fmt.Stringer so
// IDs print sensibly in logs and error messages.
func (x ID) String() string {
	return x.ToHexString(false)
}

// ToHexString renders x as lowercase hex, optionally "0x"-prefixed.
func (x ID) ToHexString(prefix bool) string {
	if x == nil {
		return "<nil>"
	}
	s := hex.EncodeToString(x)
	if prefix {
		return "0x" + s
	}
	return s
}

// ToBigInt interprets x as a big-endian unsigned integer.
func (x ID) ToBigInt() *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).SetBytes(x)
}

// FromHexString parses a hex string (optionally "0x"-prefixed) into an ID,
// accepting leading zero padding but rejecting any value that would
// overflow the space.
func (sp Space) FromHexString(s string) (ID, error) {
	str := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if str == "" {
		return nil, fmt.Errorf("invalid hex string: empty input")
	}
	bt, err := hex.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	if len(bt) > sp.ByteLen {
		leading := bt[:len(bt)-sp.ByteLen]
		for _, b := range leading {
			if b != 0 {
				return nil, fmt.Errorf("value exceeds %d-bit space (non-zero leading bytes)", sp.Bits)
			}
		}
		bt = bt[len(bt)-sp.ByteLen:]
	}
	id := make(ID, sp.ByteLen)
	copy(id[sp.ByteLen-len(bt):], bt)
	if err := sp.IsValidID(id); err != nil {
		return nil, fmt.Errorf("value exceeds %d-bit space", sp.Bits)
	}
	return id, nil
}

// FromUint64 truncates x to Bits bits and returns it as an ID.
func (sp Space) FromUint64(x uint64) ID {
	id := make(ID, sp.ByteLen)
	for i := sp.ByteLen - 1; i >= 0 && x > 0; i-- {
		id[i] = byte(x & 0xFF)
		x >>= 8
	}
	sp.mask(id)
	return id
}

// Cmp compares x and b as big-endian unsigned integers: -1, 0 or +1.
func (x ID) Cmp(b ID) int {
	return bytes.Compare(x, b)
}

// Equal reports whether x and b are the same identifier.
func (x ID) Equal(b ID) bool {
	return bytes.Equal(x, b)
}

// Between reports whether x lies in the open clockwise arc (a, b) on the
// ring, i.e. strictly after a and strictly before b, wrapping at M.
// When a == b the arc is the whole ring excluding that point, so the
// result is true for every x other than a itself.
func (x ID) Between(a, b ID) bool {
	if a.Equal(b) {
		return !x.Equal(a)
	}
	if a.Cmp(b) < 0 {
		return a.Cmp(x) < 0 && x.Cmp(b) < 0
	}
	return a.Cmp(x) < 0 || x.Cmp(b) < 0
}

// BetweenRightInclusive reports whether x lies in the half-open clockwise
// arc (a, b]. When a == b the arc is the whole ring (every x qualifies,
// including b itself).
func (x ID) BetweenRightInclusive(a, b ID) bool {
	if a.Equal(b) {
		return true
	}
	if a.Cmp(b) < 0 {
		return a.Cmp(x) < 0 && x.Cmp(b) <= 0
	}
	return a.Cmp(x) < 0 || x.Cmp(b) <= 0
}

// BetweenLeftInclusive reports whether x lies in the half-open clockwise
// arc [a, b). When a == b the arc is the whole ring (every x qualifies,
// including a itself).
func (x ID) BetweenLeftInclusive(a, b ID) bool {
	if a.Equal(b) {
		return true
	}
	if a.Cmp(b) < 0 {
		return a.Cmp(x) <= 0 && x.Cmp(b) < 0
	}
	return a.Cmp(x) <= 0 || x.Cmp(b) < 0
}

// AddMod computes (a + b) mod 2^Bits with per-byte carry propagation.
func (sp Space) AddMod(a, b ID) (ID, error) {
	if err := sp.IsValidID(a); err != nil {
		return nil, fmt.Errorf("invalid ID a: %w", err)
	}
	if err := sp.IsValidID(b); err != nil {
		return nil, fmt.Errorf("invalid ID b: %w", err)
	}
	res := make(ID, sp.ByteLen)
	carry := 0
	for i := sp.ByteLen - 1; i >= 0; i-- {
		sum := int(a[i]) + int(b[i]) + carry
		res[i] = byte(sum & 0xFF)
		carry = sum >> 8
	}
	sp.mask(res)
	return res, nil
}

// Distance returns the clockwise distance from "from" to "to" on the ring,
// i.e. (to - from) mod 2^Bits, always in [0, M).
func (sp Space) Distance(from, to ID) *big.Int {
	d := new(big.Int).Sub(to.ToBigInt(), from.ToBigInt())
	return d.Mod(d, sp.M())
}

// AddPow2 computes (id + 2^i) mod 2^Bits — the offset used to locate the
// key that finger-table slot i is responsible for.
func (sp Space) AddPow2(id ID, i int) (ID, error) {
	delta := sp.Zero()
	byteIdx := sp.ByteLen - 1 - i/8
	if byteIdx < 0 {
		// i >= Bits: 2^i mod 2^Bits == 0.
		return sp.AddMod(id, sp.Zero())
	}
	delta[byteIdx] = 1 << uint(i%8)
	return sp.AddMod(id, delta)
}
