package crypto

import (
	"crypto/sha256"

	"github.com/cotinet/cotinode/src/common"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// HashOf returns the SHA256 digest of the concatenation of parts as a
// common.Hash.
func HashOf(parts ...[]byte) common.Hash {
	hasher := sha256.New()
	for _, p := range parts {
		hasher.Write(p)
	}
	return common.BytesToHash(hasher.Sum(nil))
}
