package sessionstore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// sealer encrypts session blobs at rest with nacl secretbox. The passphrase is
// hashed into the 32-byte sealing key; there is no KDF ceremony here because
// the threat model is a leaked sessions directory, not an offline brute force
// of a weak passphrase.
type sealer struct {
	key [32]byte
}

func newSealer(passphrase string) *sealer {
	return &sealer{key: sha256.Sum256([]byte(passphrase))}
}

// seal returns nonce || ciphertext.
func (s *sealer) seal(plain []byte) []byte {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// nothing sensible to do but stop.
		panic(fmt.Sprintf("sessionstore: read nonce: %v", err))
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key)
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed blob too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("blob does not authenticate (wrong key or corrupt data)")
	}
	return plain, nil
}
