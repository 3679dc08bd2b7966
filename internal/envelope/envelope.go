// Package envelope encrypts sync payloads with a passphrase.
//
// Keys are derived with PBKDF2-HMAC-SHA256 over a fresh random salt and the
// data is sealed with AES-256-GCM under a fresh random IV. The GCM tag is
// the only passphrase check: a wrong passphrase and a tampered envelope
// both surface as ErrDecryption.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version is the envelope format written by Encrypt.
	Version = 1

	// Iterations is the PBKDF2 work factor.
	Iterations = 100_000

	SaltSize = 32
	IVSize   = 12
	KeySize  = 32
	TagSize  = 16
)

var (
	// ErrDecryption means the envelope could not be authenticated: the
	// passphrase is wrong or the data was corrupted.
	ErrDecryption = errors.New("decryption failed: wrong passphrase or corrupted data")

	// ErrUnsupportedVersion means the envelope was written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
)

// Envelope is the encrypted document stored remotely. Field names are part
// of the wire format shared with other clients.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
	Salt       string `json:"salt"`
	Version    int    `json:"version"`
}

// DeriveKey stretches passphrase with salt into an AES-256 key. It is
// deliberately slow.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, Iterations, KeySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from passphrase. Every call
// draws a new salt and IV.
func Encrypt(plaintext []byte, passphrase string) (*Envelope, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	gcm, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return &Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Version:    Version,
	}, nil
}

// Decrypt authenticates and opens env. Any failure to authenticate,
// including malformed fields, returns an error wrapping ErrDecryption.
func Decrypt(env *Envelope, passphrase string) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: empty envelope", ErrDecryption)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	ciphertext, err := decodeField("ciphertext", env.Ciphertext, -1)
	if err != nil {
		return nil, err
	}
	iv, err := decodeField("iv", env.IV, IVSize)
	if err != nil {
		return nil, err
	}
	tag, err := decodeField("authTag", env.AuthTag, TagSize)
	if err != nil {
		return nil, err
	}
	salt, err := decodeField("salt", env.Salt, -1)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// EncryptObject serializes v as JSON and encrypts it.
func EncryptObject(v any, passphrase string) (*Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return Encrypt(data, passphrase)
}

// DecryptObject decrypts env and decodes the JSON plaintext into v.
func DecryptObject(env *Envelope, passphrase string, v any) error {
	data, err := Decrypt(env, passphrase)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// Marshal encodes env as the JSON document stored remotely.
func Marshal(env *Envelope) ([]byte, error) {
	return json.MarshalIndent(env, "", "  ")
}

// Unmarshal parses a stored envelope document. Documents that are not
// envelopes at all are reported as ErrDecryption.
func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", ErrDecryption, err)
	}
	if env.Ciphertext == "" && env.IV == "" && env.Salt == "" {
		return nil, fmt.Errorf("%w: document is not an encrypted envelope", ErrDecryption)
	}
	return &env, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}

// decodeField base64-decodes one envelope field. wantLen < 0 skips the
// length check.
func decodeField(name, value string, wantLen int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s encoding", ErrDecryption, name)
	}
	if wantLen >= 0 && len(b) != wantLen {
		return nil, fmt.Errorf("%w: %s has length %d, want %d", ErrDecryption, name, len(b), wantLen)
	}
	return b, nil
}
