// Package crypto implements the PII cipher: authenticated encryption for
// fields at rest, keyed hashing for lookups, masking for anonymization, and
// integrity digests for tamper detection.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/scrypt"

	dErrors "custodia/pkg/domain-errors"
)

// AlgorithmAESGCM is the only algorithm emitted or accepted. Stored fields
// carry the algorithm name so a future rotation can coexist with old rows.
const AlgorithmAESGCM = "aes-256-gcm"

// keyDerivationSalt is a domain-separation constant, not a secret. The secret
// is the configured passphrase; scrypt makes brute-forcing it slow.
const keyDerivationSalt = "custodia.pii.v1"

const nonceSize = 12

// EncryptedField is the stored shape of an encrypted PII value. It is
// persisted alongside whichever entity owns the field.
type EncryptedField struct {
	Ciphertext string `json:"encrypted"`
	IV         string `json:"iv"`
	Algorithm  string `json:"algorithm"`
}

// Cipher performs all cryptographic transformations for PII fields. The key
// is derived once at construction; Cipher is safe for concurrent use.
type Cipher struct {
	aead   cipher.AEAD
	pepper []byte
}

// New derives the encryption key from the configured secret and prepares the
// AEAD. It fails closed: an empty secret or pepper is a configuration error,
// never a fallback to plaintext.
func New(secret, pepper string) (*Cipher, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeEncryption, "encryption secret is not configured")
	}
	if pepper == "" {
		return nil, dErrors.New(dErrors.CodeEncryption, "hash pepper is not configured")
	}

	key, err := scrypt.Key([]byte(secret), []byte(keyDerivationSalt), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryption, "key derivation failed")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryption, "cipher init failed")
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryption, "gcm init failed")
	}

	return &Cipher{aead: aead, pepper: []byte(pepper)}, nil
}

// Encrypt seals the plaintext under a fresh random IV. The same plaintext
// encrypted twice yields different ciphertext.
func (c *Cipher) Encrypt(plaintext string) (EncryptedField, error) {
	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return EncryptedField{}, dErrors.Wrap(err, dErrors.CodeEncryption, "iv generation failed")
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	return EncryptedField{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		IV:         hex.EncodeToString(iv),
		Algorithm:  AlgorithmAESGCM,
	}, nil
}

// Decrypt recovers the plaintext. It fails with CodeDecryption on a wrong
// key, malformed IV, or truncated/corrupted ciphertext; these failures must
// propagate to the caller, never be masked.
func (c *Cipher) Decrypt(field EncryptedField) (string, error) {
	if field.Algorithm != AlgorithmAESGCM {
		return "", dErrors.New(dErrors.CodeDecryption, "unsupported algorithm: "+field.Algorithm)
	}

	iv, err := hex.DecodeString(field.IV)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDecryption, "malformed iv")
	}
	if len(iv) != nonceSize {
		return "", dErrors.New(dErrors.CodeDecryption, "malformed iv")
	}

	sealed, err := base64.StdEncoding.DecodeString(field.Ciphertext)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDecryption, "malformed ciphertext")
	}

	plain, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDecryption, "ciphertext authentication failed")
	}
	return string(plain), nil
}

// Hash produces a deterministic peppered digest for lookups and
// anonymization. When salt is empty a fresh random salt is generated and
// returned; the caller must persist that salt to reproduce the digest later.
func (c *Cipher) Hash(data, salt string) (digest, usedSalt string, err error) {
	if salt == "" {
		raw := make([]byte, 16)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return "", "", dErrors.Wrap(err, dErrors.CodeEncryption, "salt generation failed")
		}
		salt = hex.EncodeToString(raw)
	}

	h := sha256.New()
	h.Write([]byte(salt))
	h.Write(c.pepper)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil)), salt, nil
}

// IntegrityHash returns a fixed digest of data for tamper detection.
func IntegrityHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity reports whether data still matches a previously computed
// integrity hash. Comparison is constant time.
func VerifyIntegrity(data []byte, hash string) bool {
	sum := IntegrityHash(data)
	return subtle.ConstantTimeCompare([]byte(sum), []byte(hash)) == 1
}
