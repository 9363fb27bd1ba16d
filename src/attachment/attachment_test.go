package attachment

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "attachments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	att := &Attachment{
		Owner:       "default",
		Filename:    "photo.png",
		BlobName:    "abc_photo.png",
		ContentType: "image/png",
	}
	require.NoError(t, Create(ctx, db.DB(), att))
	require.NotEmpty(t, att.ID)
	assert.False(t, att.CreatedAt.IsZero())

	got, err := GetByID(ctx, db.DB(), "default", att.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "photo.png", got.Filename)
	assert.Equal(t, "abc_photo.png", got.BlobName)
	assert.Equal(t, "image/png", got.ContentType)
	assert.Equal(t, JSONMap{}, got.Metadata)
}

func TestGetIsScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	att := &Attachment{Owner: "alice", Filename: "f.txt", BlobName: "b"}
	require.NoError(t, Create(ctx, db.DB(), att))

	got, err := GetByID(ctx, db.DB(), "bob", att.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListByOwner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"one.txt", "two.txt"} {
		require.NoError(t, Create(ctx, db.DB(), &Attachment{
			Owner: "default", Filename: name, BlobName: name,
		}))
	}
	require.NoError(t, Create(ctx, db.DB(), &Attachment{
		Owner: "other", Filename: "three.txt", BlobName: "three.txt",
	}))

	atts, err := ListByOwner(ctx, db.DB(), "default")
	require.NoError(t, err)
	require.Len(t, atts, 2)
	assert.Equal(t, "one.txt", atts[0].Filename)
	assert.Equal(t, "two.txt", atts[1].Filename)
}

func TestUpdateMetadata(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	att := &Attachment{Owner: "default", Filename: "f", BlobName: "b"}
	require.NoError(t, Create(ctx, db.DB(), att))

	meta := map[string]any{"caption": "a sunset", "width": float64(800)}
	require.NoError(t, UpdateMetadata(ctx, db.DB(), "default", att.ID, meta))

	got, err := GetByID(ctx, db.DB(), "default", att.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JSONMap(meta), got.Metadata)

	err = UpdateMetadata(ctx, db.DB(), "default", "missing", meta)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	att := &Attachment{Owner: "default", Filename: "f", BlobName: "b"}
	require.NoError(t, Create(ctx, db.DB(), att))

	require.NoError(t, Delete(ctx, db.DB(), "default", att.ID))
	got, err := GetByID(ctx, db.DB(), "default", att.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, Delete(ctx, db.DB(), "default", att.ID), ErrNotFound)
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"chatbot://abc-123", "abc-123", true},
		{"chatbot://abc-123/", "abc-123", true},
		{"chatbot://abc-123  ", "abc-123", true},
		{"chatbot://", "", false},
		{"chatbot:///", "", false},
		{"https://example.com/x.png", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		id, ok := ParseRef(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.in)
		assert.Equal(t, tt.wantID, id, "input %q", tt.in)
	}
	assert.Equal(t, "chatbot://xyz", MakeRef("xyz"))
}
