package idcodec

import (
	"errors"
	"strconv"
	"strings"
)

// Compressed ids are an obfuscation, not a secret: a fixed-key Feistel
// permutation over the 64-bit id space, rendered in base 36 with an "x"
// prefix so the two forms can never be confused. Being a permutation, the
// encoding is collision-free and needs no lookup table.

var roundKeys = [3]uint32{0x4f1bbcdc, 0x9e3779b9, 0x7feb352d}

var ErrMalformed = errors.New("malformed id")

func round(half, key uint32) uint32 {
	x := half ^ key
	x *= 0x9e3779b1
	x ^= x >> 15
	return x
}

func permute(v uint64) uint64 {
	left := uint32(v >> 32)
	right := uint32(v)
	for _, k := range roundKeys {
		left, right = right, left^round(right, k)
	}
	return uint64(left)<<32 | uint64(right)
}

func unpermute(v uint64) uint64 {
	left := uint32(v >> 32)
	right := uint32(v)
	for i := len(roundKeys) - 1; i >= 0; i-- {
		left, right = right^round(left, roundKeys[i]), left
	}
	return uint64(left)<<32 | uint64(right)
}

// Compress returns the obfuscated textual form of id.
func Compress(id int64) string {
	return "x" + strconv.FormatUint(permute(uint64(id)), 36)
}

// Parse accepts either a plain decimal id or a compressed token and returns
// the numeric id. Any other input is ErrMalformed; callers that support
// alternate keys try those next.
func Parse(raw string) (int64, error) {
	if raw == "" {
		return 0, ErrMalformed
	}
	if strings.HasPrefix(raw, "x") {
		v, err := strconv.ParseUint(raw[1:], 36, 64)
		if err != nil {
			return 0, ErrMalformed
		}
		return int64(unpermute(v)), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, ErrMalformed
	}
	return id, nil
}

// IsID reports whether raw has the shape of a plain or compressed id.
func IsID(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}
