// Package envelope builds and parses versioned AES-256-GCM envelopes.
//
// An envelope is laid out as
//
//	[version:1][nonce:12][ciphertext:N][tag:16]
//
// and travels as unpadded base64url text. Consumers must branch on the version
// byte before reading anything else.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	apperrors "cookiecrypt/internal/errors"
)

// Layout of format version 1.
const (
	Version     byte = 1
	VersionSize      = 1
	NonceSize        = 12
	TagSize          = 16
	KeySize          = 32

	// Overhead is the envelope size for an empty plaintext.
	Overhead = VersionSize + NonceSize + TagSize
)

// EnvelopeLength returns the binary envelope size for a plaintext of n bytes.
func EnvelopeLength(n int) int {
	return Overhead + n
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithRandom replaces the nonce source. The reader must be safe for concurrent use
// if the encoder is shared.
func WithRandom(r io.Reader) Option {
	return func(e *Encoder) {
		e.random = r
	}
}

// Encoder seals and opens envelopes under a single key. It holds no per-call state
// and may be shared between goroutines.
type Encoder struct {
	gcm    cipher.AEAD
	random io.Reader
}

// NewEncoder prepares AES-256-GCM for key.
func NewEncoder(key Key, opts ...Option) (*Encoder, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, apperrors.NewEncryptionError(err, "failed to create cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.NewEncryptionError(err, "failed to create GCM")
	}
	if gcm.NonceSize() != NonceSize || gcm.Overhead() != TagSize {
		return nil, apperrors.New(apperrors.ErrCodeEncryption, "unexpected GCM parameters").
			WithContext("nonce_size", gcm.NonceSize()).
			WithContext("tag_size", gcm.Overhead())
	}

	e := &Encoder{gcm: gcm, random: rand.Reader}
	for _, opt := range opts {
		opt(e)
	}
	if e.random == nil {
		e.random = rand.Reader
	}
	return e, nil
}

// Seal returns the binary envelope for plaintext using a fresh random nonce.
func (e *Encoder) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, VersionSize+NonceSize, EnvelopeLength(len(plaintext)))
	out[0] = Version

	nonce := out[VersionSize : VersionSize+NonceSize]
	if n, err := io.ReadFull(e.random, nonce); err != nil {
		return nil, apperrors.NewEntropyError(err, NonceSize, n)
	}

	// No associated data: the version byte is not bound to the tag in format 1.
	out = e.gcm.Seal(out, nonce, plaintext, nil)
	if len(out) != EnvelopeLength(len(plaintext)) {
		return nil, apperrors.New(apperrors.ErrCodeEncryption, "sealed envelope has unexpected length").
			WithContext("length", len(out))
	}
	return out, nil
}

// Open verifies and decrypts a binary envelope. No plaintext is returned unless the
// tag verifies.
func (e *Encoder) Open(envelope []byte) ([]byte, error) {
	if len(envelope) == 0 {
		return nil, apperrors.NewDecodeError("empty envelope", nil)
	}
	if envelope[0] != Version {
		return nil, apperrors.NewDecodeError("unsupported envelope version", nil).
			WithContext("version", int(envelope[0]))
	}
	if len(envelope) < Overhead {
		return nil, apperrors.NewDecodeError("truncated envelope", nil).
			WithContext("length", len(envelope)).
			WithContext("minimum", Overhead)
	}

	nonce := envelope[VersionSize : VersionSize+NonceSize]
	sealed := envelope[VersionSize+NonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, apperrors.NewAuthenticationError(err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Encode seals plaintext and renders the envelope as a token.
func (e *Encoder) Encode(plaintext []byte) (string, error) {
	sealed, err := e.Seal(plaintext)
	if err != nil {
		return "", err
	}
	return EncodeToken(sealed), nil
}

// EncodeString is Encode for text input. The bytes of s are used as-is.
func (e *Encoder) EncodeString(s string) (string, error) {
	return e.Encode([]byte(s))
}

// Decode parses a token and returns the authenticated plaintext.
func (e *Encoder) Decode(token string) ([]byte, error) {
	sealed, err := DecodeToken(token)
	if err != nil {
		return nil, err
	}
	return e.Open(sealed)
}

// Encode is a one-shot helper around NewEncoder and Encoder.Encode.
func Encode(plaintext []byte, key Key) (string, error) {
	e, err := NewEncoder(key)
	if err != nil {
		return "", err
	}
	return e.Encode(plaintext)
}

// Decode is a one-shot helper around NewEncoder and Encoder.Decode.
func Decode(token string, key Key) ([]byte, error) {
	e, err := NewEncoder(key)
	if err != nil {
		return nil, err
	}
	return e.Decode(token)
}

// EncodeHex parses keyHex and encodes plaintext under it. A malformed key fails
// before any randomness is read.
func EncodeHex(plaintext []byte, keyHex string, opts ...Option) (string, error) {
	key, err := ParseHexKey(keyHex)
	if err != nil {
		return "", err
	}
	e, err := NewEncoder(key, opts...)
	if err != nil {
		return "", err
	}
	return e.Encode(plaintext)
}
