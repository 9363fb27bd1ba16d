package blobstore

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	signer := NewSigner([]byte("test-signing-key"), time.Hour)
	store, err := New(afero.NewMemMapFs(), "/blobs", signer, nil)
	require.NoError(t, err)
	return store
}

func TestPutGetDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("img.png", []byte("fake png")))

	got, err := store.Get("img.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("fake png"), got)

	ok, err := store.Exists("img.png")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete("img.png"))
	_, err = store.Get("img.png")
	assert.ErrorIs(t, err, ErrNotFound)
	err = store.Delete("img.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put("a.txt", []byte("one")))
	require.NoError(t, store.Put("a.txt", []byte("two")))

	got, err := store.Get("a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestRejectsTraversalNames(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b", `a\b`, "..hidden.."} {
		err := store.Put(name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestSignedURLRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put("img.png", []byte("fake png")))

	link, err := store.SignedURL("img.png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "/api/v1/blobs/img.png?"))

	u, err := url.Parse(link)
	require.NoError(t, err)
	exp, err := strconv.ParseInt(u.Query().Get("exp"), 10, 64)
	require.NoError(t, err)
	sig := u.Query().Get("sig")
	require.NotEmpty(t, sig)

	assert.NoError(t, store.Verify("img.png", exp, sig))
	assert.ErrorIs(t, store.Verify("other.png", exp, sig), ErrBadSignature)
	assert.ErrorIs(t, store.Verify("img.png", exp+1, sig), ErrBadSignature)
	assert.ErrorIs(t, store.Verify("img.png", exp, "deadbeef"), ErrBadSignature)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSigner([]byte("k"), time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return base }

	link := signer.SignedURL("img.png")
	u, err := url.Parse(link)
	require.NoError(t, err)
	exp, err := strconv.ParseInt(u.Query().Get("exp"), 10, 64)
	require.NoError(t, err)
	sig := u.Query().Get("sig")

	require.NoError(t, signer.Verify("img.png", exp, sig))

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.ErrorIs(t, signer.Verify("img.png", exp, sig), ErrLinkExpired)
}
