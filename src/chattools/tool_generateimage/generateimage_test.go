package tool_generateimage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaenova/chatd/src/aisdk"
	"github.com/kaenova/chatd/src/attachment"
	"github.com/kaenova/chatd/src/blobstore"
)

type fakeGenerator struct {
	data []byte
	err  error

	prompt, size, style string
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt, size, style string) ([]byte, error) {
	f.prompt, f.size, f.style = prompt, size, style
	return f.data, f.err
}

func testDeps(t *testing.T, gen Generator) Deps {
	t.Helper()
	signer := blobstore.NewSigner([]byte("k"), time.Hour)
	blobs, err := blobstore.New(afero.NewMemMapFs(), "/blobs", signer, nil)
	require.NoError(t, err)

	db, err := attachment.Open(filepath.Join(t.TempDir(), "att.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return Deps{Generator: gen, Blobs: blobs, DB: db, Owner: "default"}
}

func executeTool(t *testing.T, deps Deps, args string) (*aisdk.ToolResponse, GenerateImageOutput) {
	t.Helper()
	tool, err := Tool(deps)
	require.NoError(t, err)

	resp, err := tool.Execute(context.Background(), &aisdk.ToolCall{
		Function: aisdk.FunctionCall{Arguments: json.RawMessage(args)},
	})
	require.NoError(t, err)

	var out GenerateImageOutput
	if !resp.IsError {
		require.NoError(t, json.Unmarshal(resp.Content, &out))
	}
	return resp, out
}

func TestGenerateImageStoresBlobAndRecord(t *testing.T) {
	gen := &fakeGenerator{data: []byte("png bytes")}
	deps := testDeps(t, gen)

	resp, out := executeTool(t, deps, `{"prompt":"a sunset over mountains"}`)
	require.False(t, resp.IsError)

	assert.Equal(t, "a sunset over mountains", gen.prompt)
	assert.Equal(t, "1024x1024", gen.size)
	assert.Equal(t, "vivid", gen.style)

	id, ok := attachment.ParseRef(out.URL)
	require.True(t, ok)

	att, err := attachment.GetByID(context.Background(), deps.DB.DB(), "default", id)
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Equal(t, "image/png", att.ContentType)
	assert.Equal(t, "a sunset over mountains", att.Metadata["prompt"])

	data, err := deps.Blobs.Get(att.BlobName)
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)
}

func TestGenerateImageValidatesArguments(t *testing.T) {
	deps := testDeps(t, &fakeGenerator{data: []byte("x")})

	resp, _ := executeTool(t, deps, `{"prompt":"p","size":"640x480"}`)
	assert.True(t, resp.IsError)

	resp, _ = executeTool(t, deps, `{"prompt":"p","style":"impressionist"}`)
	assert.True(t, resp.IsError)

	resp, _ = executeTool(t, deps, `{"prompt":"  "}`)
	assert.True(t, resp.IsError)
}

func TestGenerateImageGeneratorFailure(t *testing.T) {
	deps := testDeps(t, &fakeGenerator{err: errors.New("provider down")})

	resp, _ := executeTool(t, deps, `{"prompt":"a cat"}`)
	assert.True(t, resp.IsError)
	assert.Contains(t, string(resp.Content), "provider down")
}
