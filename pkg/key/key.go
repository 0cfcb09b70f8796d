// Package key derives the arena's fixed-width digests from a caller's typed
// keys, keeping the "new" and "old" namespaces (see pkg/oldnew) in disjoint
// digest spaces while sharing one arena.
package key

import (
	"crypto/md5"
	"fmt"
	"strings"
)

const oldToken = "old_"

// Key is the opaque, pre-hash byte representation of a namespaced user key.
// It carries enough structure for ToOld/NewFromOld to round-trip without
// re-deriving from the original typed value; MD5 reduces it to the 16-byte
// digest the arena actually stores.
type Key string

// Domain binds a typed key K to its string encoding. Two Domains over the
// same K produce identical digests for identical (prefix, k) pairs, so one
// Domain per K is enough for a whole process.
type Domain[K fmt.Stringer] struct{}

// NewDomain constructs a Domain for K.
func NewDomain[K fmt.Stringer]() Domain[K] {
	return Domain[K]{}
}

// Make builds the new-namespace key for (prefix, k). Panics if k's string
// form already carries the reserved "old_" token at the position Make would
// use it, since that would collide with MakeOld's namespace.
func (Domain[K]) Make(prefix uint32, k K) Key {
	s := k.String()
	if strings.HasPrefix(s, oldToken) {
		panic(fmt.Sprintf("key: user key %q begins with the reserved %q token", s, oldToken))
	}
	return Key(fmt.Sprintf("%d:%s", prefix, s))
}

// MakeOld builds the old-namespace key for (prefix, k) directly, without
// going through Make+ToOld. Same reserved-token guard as Make.
func (Domain[K]) MakeOld(prefix uint32, k K) Key {
	s := k.String()
	if strings.HasPrefix(s, oldToken) {
		panic(fmt.Sprintf("key: user key %q begins with the reserved %q token", s, oldToken))
	}
	return Key(fmt.Sprintf("%d:%s%s", prefix, oldToken, s))
}

// ToOld converts a new-namespace key into its old-namespace counterpart.
func ToOld(k Key) Key {
	prefix, rest := splitPrefix(k)
	return Key(fmt.Sprintf("%d:%s%s", prefix, oldToken, rest))
}

// NewFromOld reverses ToOld. Panics if k is not an old-namespace key.
func NewFromOld(k Key) Key {
	prefix, rest := splitPrefix(k)
	if !strings.HasPrefix(rest, oldToken) {
		panic(fmt.Sprintf("key: %q is not an old-namespace key", k))
	}
	return Key(fmt.Sprintf("%d:%s", prefix, strings.TrimPrefix(rest, oldToken)))
}

// MD5 reduces k to the 16-byte digest the arena stores entries under.
func MD5(k Key) [16]byte {
	return md5.Sum([]byte(k))
}

func splitPrefix(k Key) (prefix uint32, rest string) {
	s := string(k)
	i := strings.IndexByte(s, ':')
	if i < 0 {
		panic(fmt.Sprintf("key: malformed key %q", s))
	}
	if _, err := fmt.Sscanf(s[:i], "%d", &prefix); err != nil {
		panic(fmt.Sprintf("key: malformed key prefix %q: %v", s[:i], err))
	}
	return prefix, s[i+1:]
}
