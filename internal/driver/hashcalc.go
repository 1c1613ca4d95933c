package driver

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is a SHA-256 content hash.
type Digest [sha256.Size]byte

// String renders the digest as lowercase hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d was never computed.
func (d Digest) IsZero() bool { return d == Digest{} }

// HashContent hashes a declaration file's bytes.
func HashContent(data []byte) Digest {
	return sha256.Sum256(data)
}

// combineDigest: H(content || part1 || part2 ...). Parts must be in a
// deterministic order.
func combineDigest(content Digest, parts ...[]byte) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// cacheKey mixes the lowering options that change the output into the
// content hash.
func cacheKey(content Digest, opts *Options) Digest {
	flags := []byte{0, 0}
	if opts.Simplify {
		flags[0] = 1
	}
	if opts.Ownership {
		flags[1] = 1
	}
	return combineDigest(content, flags, []byte{byte(diskCacheSchemaVersion)})
}
