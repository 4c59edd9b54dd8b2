// Key typing and the UserKey -> HashKey mapping.
//
// An index never stores the user key itself, only its typed hash (§3 of
// the design). For integer key types the hash is the value itself, which
// is what lets the Sequence engine use the hash directly as a file offset.
// For strings it is a stable, non-cryptographic 64-bit digest, selectable
// via Config.HashAlgorithm the same way the teacher selects its document-ID
// algorithm.
package george

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// KeyType determines how a UserKey is mapped to a HashKey.
type KeyType int

const (
	KeyTypeNone KeyType = iota
	KeyTypeString
	KeyTypeUInt
	KeyTypeInt
	KeyTypeFloat
	KeyTypeBool
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeString:
		return "String"
	case KeyTypeUInt:
		return "UInt"
	case KeyTypeInt:
		return "Int"
	case KeyTypeFloat:
		return "Float"
	case KeyTypeBool:
		return "Bool"
	default:
		return "None"
	}
}

// HashAlgorithm selects the digest used for KeyTypeString. Numeric key
// types never consult this: their hash is the value itself, by design,
// so the Sequence engine can use it directly as a file offset.
type HashAlgorithm int

const (
	// AlgXXHash3 is the default: fastest, used by the teacher as its
	// primary document-ID algorithm.
	AlgXXHash3 HashAlgorithm = iota + 1
	// AlgFNV1a has no external dependency cost; useful when xxh3's
	// SIMD-leaning implementation is undesirable.
	AlgFNV1a
	// AlgBlake2b trades speed for the best avalanche distribution across
	// adversarial key sets.
	AlgBlake2b
)

// HashKey is the 64-bit value an index actually stores and traverses.
type HashKey = uint64

// UserKey is the opaque, caller-supplied key. It is never persisted; only
// its HashKey is.
type UserKey []byte

// hashString digests s into a uint64 using alg, defaulting to xxh3 for an
// unrecognised or zero algorithm.
func hashString(s string, alg HashAlgorithm) uint64 {
	switch alg {
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write([]byte(s))
		return h.Sum64()
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
		h.Write([]byte(s))
		return binary.BigEndian.Uint64(h.Sum(nil))
	default:
		return xxh3.HashString(s)
	}
}

// HashUserKey computes the HashKey for a user-supplied key under the
// declared KeyType and hash algorithm. Returns ErrKeyTypeMismatch if the
// key cannot be interpreted as the declared type.
func HashUserKey(key UserKey, kt KeyType, alg HashAlgorithm) (HashKey, error) {
	s := string(key)
	switch kt {
	case KeyTypeString, KeyTypeNone:
		return hashString(s, alg), nil
	case KeyTypeUInt:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a uint: %v", ErrKeyTypeMismatch, s, err)
		}
		return v, nil
	case KeyTypeInt:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an int: %v", ErrKeyTypeMismatch, s, err)
		}
		return uint64(v), nil
	case KeyTypeFloat:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a float: %v", ErrKeyTypeMismatch, s, err)
		}
		return math.Float64bits(v), nil
	case KeyTypeBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a bool: %v", ErrKeyTypeMismatch, s, err)
		}
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unknown key type %v", ErrKeyTypeMismatch, kt)
	}
}
