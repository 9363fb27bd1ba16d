package blobstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const signedPathPrefix = "/api/v1/blobs/"

var (
	// ErrLinkExpired indicates the signed link's expiry has passed.
	ErrLinkExpired = errors.New("signed link expired")

	// ErrBadSignature indicates the signature does not match the link.
	ErrBadSignature = errors.New("signed link signature mismatch")
)

// Signer mints and verifies HMAC-signed blob links. The signature covers the
// blob name and the expiry timestamp, so a link cannot be retargeted or
// extended.
type Signer struct {
	key []byte
	ttl time.Duration

	// now is overridable in tests.
	now func() time.Time
}

// NewSigner creates a signer with the given key and link lifetime. A
// non-positive ttl falls back to one hour.
func NewSigner(key []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}
}

// SignedURL returns the serving path for the blob with expiry and signature
// query parameters attached.
func (s *Signer) SignedURL(name string) string {
	exp := s.now().Add(s.ttl).Unix()
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", s.sign(name, exp))
	return signedPathPrefix + url.PathEscape(name) + "?" + q.Encode()
}

// Verify checks that the signature matches the name and expiry and that the
// link has not expired.
func (s *Signer) Verify(name string, expires int64, signature string) error {
	expected := s.sign(name, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	if s.now().Unix() > expires {
		return ErrLinkExpired
	}
	return nil
}

func (s *Signer) sign(name string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s|%d", name, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
