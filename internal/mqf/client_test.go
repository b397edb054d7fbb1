package mqf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isearch-project/musebag/internal/log"
)

// writeTempUpload creates a file with known content and returns its item.
func writeTempUpload(t *testing.T, name, content string) *UploadItem {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return &UploadItem{
		Path: p,
		Name: name,
		Type: "image/jpeg",
		Size: int64(len(content)),
	}
}

func TestSubmitQuery_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "submitQuery", r.PostForm.Get("f"))
		assert.Equal(t, "<RUCoD/>", r.PostForm.Get("rucod"))
		assert.Equal(t, "<RWML/>", r.PostForm.Get("rwml"))
		assert.Equal(t, "ext-1", r.PostForm.Get("session"))
		assert.Equal(t, `{"maxResults":100}`, r.PostForm.Get("options"))
		_, _ = w.Write([]byte(`{"result":{"items":3}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "/tmp", srv.Client(), log.NewNop())
	result, err := c.SubmitQuery(context.Background(), "<RUCoD/>", "<RWML/>", "ext-1", `{"maxResults":100}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":3}`, string(result))
}

func TestSubmitQuery_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"malformed rucod"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "/tmp", srv.Client(), log.NewNop())
	_, err := c.SubmitQuery(context.Background(), "<RUCoD/>", "", "ext-1", "{}")
	require.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "malformed rucod")
}

func TestDistribute_RewritesItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, "storeQueryItem", r.FormValue("f"))
		assert.Equal(t, "ext-2", r.FormValue("session"))
		assert.Equal(t, "x.jpg", r.FormValue("fileName"))
		assert.Equal(t, "9", r.FormValue("fileSize"))
		assert.Equal(t, "image/jpeg", r.FormValue("fileType"))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		content := make([]byte, 16)
		n, _ := f.Read(content)
		assert.Equal(t, "jpegbytes", string(content[:n]))

		_, _ = w.Write([]byte(`{"file":"abc123.jpg"}`))
	}))
	defer srv.Close()

	item := writeTempUpload(t, "x.jpg", "jpegbytes")
	c := NewClient(srv.URL, "/tmp", srv.Client(), log.NewNop())

	require.NoError(t, c.Distribute(context.Background(), "ext-2", item))

	assert.Equal(t, "abc123.jpg", item.Path)
	assert.Equal(t, "/tmp/x.jpg", item.OriginPath)
	assert.Empty(t, item.Subtype)
}

func TestDistribute_RewritesAtMostOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"file":"abc123.jpg"}`))
	}))
	defer srv.Close()

	item := writeTempUpload(t, "x.jpg", "jpegbytes")
	c := NewClient(srv.URL, "/tmp", srv.Client(), log.NewNop())

	require.NoError(t, c.Distribute(context.Background(), "ext-2", item))
	require.Equal(t, "abc123.jpg", item.Path)

	err := c.Distribute(context.Background(), "ext-2", item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already distributed")
	assert.Equal(t, "abc123.jpg", item.Path, "external reference must survive")
	assert.Equal(t, "/tmp/x.jpg", item.OriginPath, "origin must not be rewritten again")
}

func TestDistribute_RemoteErrorLeavesItemUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"bad file"}`))
	}))
	defer srv.Close()

	item := writeTempUpload(t, "y.png", "pngbytes")
	originalPath := item.Path

	c := NewClient(srv.URL, "/tmp", srv.Client(), log.NewNop())
	err := c.Distribute(context.Background(), "ext-3", item)
	require.ErrorIs(t, err, ErrRemote)

	assert.Equal(t, originalPath, item.Path, "item must be unmodified on error")
	assert.Empty(t, item.OriginPath)
}

func TestDistribute_ReadFailureIsTerminal(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "/tmp", nil, log.NewNop())
	item := &UploadItem{Path: filepath.Join(t.TempDir(), "missing.jpg"), Name: "missing.jpg"}

	err := c.Distribute(context.Background(), "ext-4", item)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDistribute_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	item := writeTempUpload(t, "z.png", "bytes")
	c := NewClient(srv.URL, "/tmp", srv.Client(), log.NewNop())

	err := c.Distribute(context.Background(), "ext-5", item)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRemote)
}
