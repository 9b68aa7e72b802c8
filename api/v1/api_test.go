package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/imrenagi/go-signed-upload/api/v1"
	"github.com/imrenagi/go-signed-upload/storage"
	"github.com/imrenagi/go-signed-upload/upload"
)

func newController(store storage.ObjectStore, opts ...upload.Option) Controller {
	return NewController(upload.NewPipeline(memfs.New(), store, opts...))
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename == "" {
		require.NoError(t, w.WriteField(field, content))
	} else {
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serveUpload(ctrl Controller, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/upload", ctrl.Upload())
	router.ServeHTTP(w, req)
	return w
}

func serveURL(ctrl Controller, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/url", ctrl.GetURL())
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUpload(t *testing.T) {
	t.Run("Any method other than POST is answered with 405 and an empty body before the body is read", func(t *testing.T) {
		mem := storage.NewMemory("bucket-name")
		ctrl := newController(mem)

		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			req := uploadRequest(t, "file", "a.txt", "a")
			req.Method = method
			w := serveUpload(ctrl, req)

			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
			assert.Empty(t, w.Body.String(), method)
		}
		assert.Equal(t, 0, mem.Len())
	})

	t.Run("A file under field file is stored and the response carries status true and the signed url", func(t *testing.T) {
		mem := storage.NewMemory("bucket-name")
		ctrl := newController(mem)

		w := serveUpload(ctrl, uploadRequest(t, "file", "report.txt", "quarterly numbers"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		body := decode(t, w)
		assert.Equal(t, true, body["status"])

		url, ok := body["url"].(string)
		require.True(t, ok)
		data, err := mem.Fetch(url)
		require.NoError(t, err)
		assert.Equal(t, []byte("quarterly numbers"), data)
	})

	t.Run("With url mode omit the response is exactly status true", func(t *testing.T) {
		ctrl := newController(storage.NewMemory("bucket-name"), upload.WithURLMode(upload.URLOmit))

		w := serveUpload(ctrl, uploadRequest(t, "file", "report.txt", "x"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":true}`, w.Body.String())
	})

	t.Run("A form without a file part returns the missing file message", func(t *testing.T) {
		mem := storage.NewMemory("bucket-name")
		ctrl := newController(mem)

		w := serveUpload(ctrl, uploadRequest(t, "name", "", "alice"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Please provide 'file' in form-data"}`, w.Body.String())
		assert.Equal(t, 0, mem.Len())
	})

	t.Run("A file under another field name is treated as missing", func(t *testing.T) {
		ctrl := newController(storage.NewMemory("bucket-name"))

		w := serveUpload(ctrl, uploadRequest(t, "document", "a.txt", "a"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, upload.MissingFileMessage, decode(t, w)["message"])
	})

	t.Run("A body that is not multipart is rejected with the error message", func(t *testing.T) {
		ctrl := newController(storage.NewMemory("bucket-name"))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", strings.NewReader(`{"file":"a"}`))
		req.Header.Set("Content-Type", "application/json")
		w := serveUpload(ctrl, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["message"], "multipart/form-data")
	})

	t.Run("A body above the configured limit is rejected", func(t *testing.T) {
		mem := storage.NewMemory("bucket-name")
		ctrl := NewController(upload.NewPipeline(memfs.New(), mem), WithMaxUploadBytes(64))

		w := serveUpload(ctrl, uploadRequest(t, "file", "big.bin", strings.Repeat("b", 1024)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, false, decode(t, w)["success"])
		assert.Equal(t, 0, mem.Len())
	})
}

func TestGetURL(t *testing.T) {
	stored := func(t *testing.T) *storage.Memory {
		mem := storage.NewMemory("bucket-name")
		require.NoError(t, mem.PutObject(context.Background(), "report.txt", strings.NewReader("abc"), 3, "text/plain"))
		return mem
	}

	t.Run("OPTIONS answers 204 with permissive CORS headers and no body", func(t *testing.T) {
		ctrl := newController(stored(t))

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/url", nil)
		w := serveURL(ctrl, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Empty(t, w.Body.String())
	})

	t.Run("POST with a stored filename returns a signed url that resolves to the object", func(t *testing.T) {
		mem := stored(t)
		ctrl := newController(mem)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/url", strings.NewReader(`{"data":{"filename":"report.txt"}}`))
		w := serveURL(ctrl, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		body := decode(t, w)
		assert.Equal(t, true, body["success"])

		data, err := mem.Fetch(body["url"].(string))
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), data)
	})

	t.Run("GET with a JSON body is served like POST", func(t *testing.T) {
		ctrl := newController(stored(t))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/url", strings.NewReader(`{"data":{"filename":"report.txt"}}`))
		w := serveURL(ctrl, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("A missing data object or filename returns 400 with an empty body", func(t *testing.T) {
		ctrl := newController(stored(t))

		for _, payload := range []string{`{}`, `{"data":{}}`, `{"data":{"filename":""}}`, `{"data":null}`} {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/url", strings.NewReader(payload))
			w := serveURL(ctrl, req)

			assert.Equal(t, http.StatusBadRequest, w.Code, payload)
			assert.Empty(t, w.Body.String(), payload)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), payload)
		}
	})

	t.Run("A request without a body returns 400 with an empty body", func(t *testing.T) {
		ctrl := newController(stored(t))

		for _, method := range []string{http.MethodGet, http.MethodPost} {
			req := httptest.NewRequest(method, "/api/v1/url", nil)
			w := serveURL(ctrl, req)

			assert.Equal(t, http.StatusBadRequest, w.Code, method)
			assert.Empty(t, w.Body.String(), method)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), method)
		}
	})

	t.Run("Malformed JSON returns a 400 error payload", func(t *testing.T) {
		ctrl := newController(stored(t))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/url", strings.NewReader(`{"data":`))
		w := serveURL(ctrl, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, false, decode(t, w)["success"])
	})

	t.Run("Issuance failures are reported as a 400 error payload", func(t *testing.T) {
		ctrl := newController(stored(t))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/url", strings.NewReader(`{"data":{"filename":"missing.txt"}}`))
		w := serveURL(ctrl, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["message"], "failed to generate presigned URL")
	})

	t.Run("Filenames are normalized the same way as on upload", func(t *testing.T) {
		mem := storage.NewMemory("bucket-name")
		ctrl := newController(mem)

		w := serveUpload(ctrl, uploadRequest(t, "file", "my report.txt", "abc"))
		require.Equal(t, http.StatusOK, w.Code)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/url", strings.NewReader(`{"data":{"filename":"my report.txt"}}`))
		w = serveURL(ctrl, req)

		require.Equal(t, http.StatusOK, w.Code)
		data, err := mem.Fetch(decode(t, w)["url"].(string))
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), data)
	})
}
