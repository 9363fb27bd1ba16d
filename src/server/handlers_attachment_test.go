package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadFile(t *testing.T, env *testEnv, filename, contentType string, data []byte) attachmentUploadResponse {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.http.URL+"/api/v1/attachments", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded attachmentUploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	return uploaded
}

func doRequest(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestAttachmentUploadAndFetch(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})
	payload := []byte("fake png bytes")

	uploaded := uploadFile(t, env, "photo.png", "image/png", payload)
	assert.True(t, strings.HasPrefix(uploaded.URL, "chatbot://"))
	assert.Equal(t, "photo.png", uploaded.Filename)
	assert.Equal(t, "image/png", uploaded.Type)

	id := strings.TrimPrefix(uploaded.URL, "chatbot://")
	var detail attachmentDetailResponse
	env.getJSON(t, "/api/v1/attachments/"+id, &detail)
	assert.Equal(t, id, detail.ID)
	assert.Equal(t, "photo.png", detail.Filename)
	assert.Equal(t, DefaultOwner, detail.UserID)
	require.NotEmpty(t, detail.BlobURL)

	// The signed link redeems against the blob route.
	resp, err := http.Get(env.http.URL + detail.BlobURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestAttachmentList(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})
	uploadFile(t, env, "a.txt", "text/plain", []byte("a"))
	uploadFile(t, env, "b.txt", "text/plain", []byte("b"))

	var listing map[string]any
	env.getJSON(t, "/api/v1/attachments", &listing)
	assert.Equal(t, DefaultOwner, listing["userid"])
	assert.Equal(t, float64(2), listing["count"])
	items := listing["attachments"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "a.txt", first["filename"])
	assert.True(t, strings.HasPrefix(first["url"].(string), "chatbot://"))
}

func TestAttachmentMetadataUpdate(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})
	uploaded := uploadFile(t, env, "doc.txt", "text/plain", []byte("doc"))
	id := strings.TrimPrefix(uploaded.URL, "chatbot://")

	resp := doRequest(t, http.MethodPatch, env.http.URL+"/api/v1/attachments/"+id+"/metadata",
		strings.NewReader(`{"caption":"my doc"}`))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail attachmentDetailResponse
	env.getJSON(t, "/api/v1/attachments/"+id, &detail)
	assert.Equal(t, "my doc", detail.Metadata["caption"])
}

func TestAttachmentDelete(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})
	uploaded := uploadFile(t, env, "gone.txt", "text/plain", []byte("gone"))
	id := strings.TrimPrefix(uploaded.URL, "chatbot://")

	resp := doRequest(t, http.MethodDelete, env.http.URL+"/api/v1/attachments/"+id, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	after := doRequest(t, http.MethodGet, env.http.URL+"/api/v1/attachments/"+id, nil)
	defer after.Body.Close()
	assert.Equal(t, http.StatusNotFound, after.StatusCode)
}

func TestAttachmentNotFound(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	resp := doRequest(t, http.MethodGet, env.http.URL+"/api/v1/attachments/nope", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBlobRejectsTamperedSignature(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})
	uploaded := uploadFile(t, env, "img.png", "image/png", []byte("bytes"))
	id := strings.TrimPrefix(uploaded.URL, "chatbot://")

	var detail attachmentDetailResponse
	env.getJSON(t, "/api/v1/attachments/"+id, &detail)

	link, err := url.Parse(detail.BlobURL)
	require.NoError(t, err)
	q := link.Query()
	q.Set("sig", "deadbeef")
	link.RawQuery = q.Encode()

	resp, err := http.Get(env.http.URL + link.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBlobRejectsMissingExpiry(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	resp, err := http.Get(env.http.URL + "/api/v1/blobs/whatever?sig=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	env := newTestEnvRate(t, &scriptedModel{}, 0.001, 1)

	first, err := http.Get(env.http.URL + "/api/v1/attachments")
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(env.http.URL + "/api/v1/attachments")
	require.NoError(t, err)
	defer second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}
