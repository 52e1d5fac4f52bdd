package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/cotinet/cotinode/src/common"
)

// Sign signs the data with the private key and the built-in pseudo-random
// generator rand.Reader.
func Sign(priv *ecdsa.PrivateKey, data []byte) (r, s *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, priv, data)
}

// Verify verifies that a signature represented by r and s values, is a valid
// signature of the data by an owner of the private key associated with the
// provided public key.
func Verify(pub *ecdsa.PublicKey, data []byte, r, s *big.Int) bool {
	return ecdsa.Verify(pub, data, r, s)
}

// SignHash signs a message hash and returns the encoded signature.
func SignHash(priv *ecdsa.PrivateKey, hash common.Hash) (string, error) {
	r, s, err := Sign(priv, hash[:])
	if err != nil {
		return "", err
	}
	return EncodeSignature(r, s), nil
}

// VerifyHash checks an encoded signature over hash against the hex public key
// of the signer.
func VerifyHash(pubKeyHex string, hash common.Hash, sig string) bool {
	pub, err := PublicKeyFromHex(pubKeyHex)
	if err != nil {
		return false
	}
	r, s, err := DecodeSignature(sig)
	if err != nil {
		return false
	}
	return Verify(pub, hash[:], r, s)
}

// EncodeSignature returns a string representation of a signature.
func EncodeSignature(r, s *big.Int) string {
	return fmt.Sprintf("%s|%s", r.Text(36), s.Text(36))
}

// DecodeSignature parses a string representation of a signature as produced by
// EncodeSignature.
func DecodeSignature(sig string) (r, s *big.Int, err error) {
	values := strings.Split(sig, "|")
	if len(values) != 2 {
		return r, s, fmt.Errorf("wrong number of values in signature: got %d, want 2", len(values))
	}
	r, ok := new(big.Int).SetString(values[0], 36)
	if !ok {
		return nil, nil, fmt.Errorf("signature r value %q is not base 36", values[0])
	}
	s, ok = new(big.Int).SetString(values[1], 36)
	if !ok {
		return nil, nil, fmt.Errorf("signature s value %q is not base 36", values[1])
	}
	return r, s, nil
}
