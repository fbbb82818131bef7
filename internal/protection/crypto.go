package protection

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/financeanalyst/securecore/internal/models"
)

// Cryptor performs per-classification envelope encryption. Keys are
// derived from a master secret, one per classification level and key
// version, so rotating the current version never invalidates old
// ciphertext.
type Cryptor struct {
	master  []byte
	version int
}

func NewCryptor(masterKey string) *Cryptor {
	return &Cryptor{master: []byte(masterKey), version: 1}
}

// RotateKey bumps the current key version. Existing envelopes keep
// decrypting through their recorded version.
func (c *Cryptor) RotateKey() int {
	c.version++
	return c.version
}

func (c *Cryptor) KeyVersion() int {
	return c.version
}

// Encrypt seals the payload under the current key for the level.
func (c *Cryptor) Encrypt(payload []byte, level models.Classification) (*Envelope, error) {
	if !knownClassification(level) {
		return nil, &EncryptionError{Reason: fmt.Sprintf("unknown classification %q", level)}
	}

	gcm, err := c.aead(level, c.version)
	if err != nil {
		return nil, &EncryptionError{Reason: err.Error()}
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, &EncryptionError{Reason: err.Error()}
	}

	return &Envelope{
		Classification: level,
		KeyVersion:     c.version,
		Nonce:          nonce,
		Ciphertext:     gcm.Seal(nil, nonce, payload, []byte(level)),
	}, nil
}

// Decrypt opens an envelope using the key version it was sealed with.
func (c *Cryptor) Decrypt(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, &DecryptionError{Reason: "nil envelope"}
	}
	if !knownClassification(env.Classification) {
		return nil, &DecryptionError{Reason: fmt.Sprintf("unknown classification %q", env.Classification)}
	}
	if env.KeyVersion < 1 || env.KeyVersion > c.version {
		return nil, &DecryptionError{Reason: fmt.Sprintf("unknown key version %d", env.KeyVersion)}
	}

	gcm, err := c.aead(env.Classification, env.KeyVersion)
	if err != nil {
		return nil, &DecryptionError{Reason: err.Error()}
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, []byte(env.Classification))
	if err != nil {
		return nil, &DecryptionError{Reason: "authentication failed"}
	}
	return plaintext, nil
}

func (c *Cryptor) aead(level models.Classification, version int) (cipher.AEAD, error) {
	key := make([]byte, 32)
	info := fmt.Sprintf("securecore:%s:v%d", level, version)
	kdf := hkdf.New(sha256.New, c.master, nil, []byte(info))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func knownClassification(level models.Classification) bool {
	switch level {
	case models.ClassificationPublic, models.ClassificationInternal,
		models.ClassificationConfidential, models.ClassificationRestricted,
		models.ClassificationPersonal:
		return true
	}
	return false
}
