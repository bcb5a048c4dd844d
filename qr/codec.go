package qr

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultTTL is the validity window applied when the caller does not
	// specify one.
	DefaultTTL = 300 * time.Second

	// The delimiter between the subject ID and the expiry timestamp in the
	// token plaintext.
	payloadDelimiter = ":"
)

// The IV is deliberately constant. Every plaintext embeds its expiry
// timestamp, so ciphertexts already differ across issuances for the same
// subject; the token carries no per-message nonce.
var fixedIV = []byte("hackday-checkin!")

// InvalidTokenError indicates a token that was not produced by Issue:
// bad encoding, undecryptable ciphertext, or an unparseable payload.
type InvalidTokenError struct {
	msg string
}

func (e *InvalidTokenError) Error() string {
	return e.msg
}

func (e *InvalidTokenError) Is(err error) bool {
	_, ok := err.(*InvalidTokenError)
	return ok
}

// ExpiredTokenError indicates a well-formed token whose validity window has
// passed. Callers must surface this separately from InvalidTokenError: an
// expired token warrants a fresh code, an invalid one does not.
type ExpiredTokenError struct {
	msg string
}

func (e *ExpiredTokenError) Error() string {
	return e.msg
}

func (e *ExpiredTokenError) Is(err error) bool {
	_, ok := err.(*ExpiredTokenError)
	return ok
}

// Codec turns a (subjectID, expiry) pair into an opaque URL-safe token and
// back. Tokens are self-certifying: Decode needs no store lookup, only the
// shared key and the clock. The key is derived once at construction and held
// for the Codec's lifetime.
type Codec struct {
	key        []byte
	defaultTTL time.Duration
	clock      clockwork.Clock
}

// NewCodec derives an AES-256 key from the service secret and returns a
// ready-to-use Codec. A non-positive defaultTTL selects DefaultTTL.
func NewCodec(secret []byte, defaultTTL time.Duration, clock clockwork.Clock) *Codec {
	key := sha256.Sum256(secret)
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Codec{
		key:        key[:],
		defaultTTL: defaultTTL,
		clock:      clock,
	}
}

// Issue encrypts (subjectID, now+ttl) into a URL-safe token. A zero ttl
// selects the codec's default. Negative ttls are honored and produce tokens
// that are already expired.
func (c *Codec) Issue(subjectID string, ttl time.Duration) (string, time.Time, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	expiresAt := c.clock.Now().Add(ttl)
	plaintext := subjectID + payloadDelimiter + strconv.FormatInt(expiresAt.Unix(), 10)
	ciphertext, err := c.encrypt([]byte(plaintext))
	if err != nil {
		return "", time.Time{}, err
	}
	return base64.URLEncoding.EncodeToString(ciphertext), expiresAt, nil
}

// Decode reverses Issue. Any decoding, decryption, or parsing failure is
// reported as InvalidTokenError; a parseable token past its expiry as
// ExpiredTokenError. No raw cipher errors escape.
func (c *Codec) Decode(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", &InvalidTokenError{"token is not valid base64"}
	}

	plaintext, err := c.decrypt(raw)
	if err != nil {
		return "", &InvalidTokenError{"token could not be decrypted"}
	}

	// The expiry is the last field so that subject IDs containing the
	// delimiter still round-trip.
	sep := strings.LastIndex(string(plaintext), payloadDelimiter)
	if sep < 0 {
		return "", &InvalidTokenError{"token payload is missing its expiry"}
	}
	subjectID := string(plaintext[:sep])
	expiresAt, err := strconv.ParseInt(string(plaintext[sep+1:]), 10, 64)
	if err != nil {
		return "", &InvalidTokenError{"token expiry is not an integer"}
	}

	if time.Unix(expiresAt, 0).Before(c.clock.Now()) {
		return "", &ExpiredTokenError{"token has expired"}
	}

	return subjectID, nil
}

func (c *Codec) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, fixedIV).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func (c *Codec) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, fixedIV).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
