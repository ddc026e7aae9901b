package solana

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Signer produces signatures over arbitrary message bytes on behalf of one
// public identity. Implementations must be safe for concurrent use; the
// pipeline may run multiple invocations against the same signer.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

// KeypairSigner signs with an in-memory ed25519 private key. The mutex
// serializes signing so the signer can be shared across concurrent
// invocations without any assumption about the key implementation.
type KeypairSigner struct {
	mu  sync.Mutex
	key solana.PrivateKey
}

// NewKeypairSigner wraps a private key as a Signer.
func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

// LoadKeypairSigner reads a solana-cli JSON keypair file.
func LoadKeypairSigner(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair from %s: %w", path, err)
	}
	return &KeypairSigner{key: key}, nil
}

func (s *KeypairSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *KeypairSigner) Sign(message []byte) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key.Sign(message)
}
