package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/imrenagi/go-signed-upload/upload"
	"github.com/rs/zerolog/log"
)

const defaultMaxUploadBytes = 32 << 20

type Options struct {
	MaxUploadBytes int64
}

type Option func(*Options)

func WithMaxUploadBytes(n int64) Option {
	return func(o *Options) {
		o.MaxUploadBytes = n
	}
}

func NewController(p *upload.Pipeline, opts ...Option) Controller {
	o := Options{
		MaxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return Controller{
		pipeline: p,
		issuer:   p.Issuer(),
		opts:     o,
	}
}

type Controller struct {
	pipeline *upload.Pipeline
	issuer   *upload.Issuer
	opts     Options
}

type uploadResponse struct {
	Status bool   `json:"status"`
	URL    string `json:"url,omitempty"`
}

type urlRequest struct {
	Data *struct {
		Filename string `json:"filename"`
	} `json:"data"`
}

type urlResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

type cError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Upload accepts a multipart form, stores the part named "file" and answers
// with the signed URL when the pipeline is configured to return it.
func (c *Controller) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		logger := log.Ctx(r.Context())
		logger.Debug().Str("content_type", r.Header.Get("Content-Type")).Msg("Request Content Type")

		r.Body = http.MaxBytesReader(w, r.Body, c.opts.MaxUploadBytes)
		defer r.Body.Close()

		res, err := c.pipeline.Run(r.Context(), r.Body, r.Header.Get("Content-Type"))
		if errors.Is(err, upload.ErrMissingFile) {
			logger.Debug().Msg("no file in form-data")
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg("upload failed")
			writeError(w, http.StatusBadRequest, err)
			return
		}

		writeJSON(w, http.StatusOK, uploadResponse{Status: true, URL: res.URL})
	}
}

// GetURL issues a fresh signed URL for an already stored object. It is open
// to any origin.
func (c *Controller) GetURL() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST")

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		logger := log.Ctx(r.Context())

		var req urlRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			// no body means no data
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.Debug().Err(err).Msg("invalid url request body")
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Data == nil || req.Data.Filename == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		key, err := upload.SanitizeFilename(req.Data.Filename)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		url, err := c.issuer.Issue(r.Context(), key)
		if err != nil {
			logger.Error().Err(err).Str("key", key).Msg("failed to issue signed url")
			writeError(w, http.StatusBadRequest, err)
			return
		}

		writeJSON(w, http.StatusOK, urlResponse{Success: true, URL: url})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, cError{Success: false, Message: err.Error()})
}
