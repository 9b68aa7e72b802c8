// Package upload implements the multipart upload pipeline: parse the form,
// stage file parts to scratch storage, hand the "file" part to the object
// store, issue a signed URL for it and clean the scratch files up.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"github.com/imrenagi/go-signed-upload/storage"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FileField is the form field that carries the file to store.
const FileField = "file"

// URLMode decides what the pipeline does with a signed URL after a successful
// transfer.
type URLMode string

const (
	// URLInclude issues a URL and returns it in the Result.
	URLInclude URLMode = "include"
	// URLOmit skips URL issuance on the upload path.
	URLOmit URLMode = "omit"
	// URLLog issues a URL and only logs it.
	URLLog URLMode = "log"
)

func ParseURLMode(s string) (URLMode, error) {
	switch m := URLMode(s); m {
	case URLInclude, URLOmit, URLLog:
		return m, nil
	default:
		return "", fmt.Errorf("unknown url mode %q", s)
	}
}

type Options struct {
	URLMode URLMode
}

type Option func(*Options)

func WithURLMode(mode URLMode) Option {
	return func(o *Options) {
		o.URLMode = mode
	}
}

// Result is the outcome of a successful pipeline run.
type Result struct {
	Key string
	// URL is empty unless the pipeline runs with URLInclude.
	URL    string
	Fields map[string]string
	Files  map[string]FileUpload
}

// Pipeline is safe for concurrent use; every Run works in its own scratch
// directory.
type Pipeline struct {
	scratch  billy.Filesystem
	uploader *Uploader
	issuer   *Issuer
	urlMode  URLMode
	metrics  instruments
}

func NewPipeline(scratch billy.Filesystem, store storage.ObjectStore, opts ...Option) *Pipeline {
	o := Options{
		URLMode: URLInclude,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pipeline{
		scratch:  scratch,
		uploader: NewUploader(scratch, store),
		issuer:   NewIssuer(store),
		urlMode:  o.URLMode,
		metrics:  newInstruments(),
	}
}

// Run processes one multipart body. Staged files are always removed before
// Run returns, whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, body io.Reader, contentType string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "upload.Pipeline.Run")
	defer span.End()

	res, err := p.run(ctx, body, contentType)
	switch {
	case err == nil:
		p.metrics.recordOutcome(ctx, outcomeSuccess)
	case errors.Is(err, ErrMissingFile):
		p.metrics.recordOutcome(ctx, outcomeMissingFile)
	default:
		p.metrics.recordOutcome(ctx, outcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, body io.Reader, contentType string) (*Result, error) {
	logger := log.Ctx(ctx)

	boundary, err := multipartBoundary(contentType)
	if err != nil {
		return nil, err
	}

	dir := uuid.New().String()
	sweeper := NewSweeper(p.scratch, dir)
	defer func() {
		p.metrics.recordSwept(ctx, sweeper.Sweep(ctx))
	}()

	dec, err := p.receive(ctx, multipart.NewReader(body, boundary), dir, sweeper)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Fields: dec.fields,
		Files:  make(map[string]FileUpload, len(dec.files)),
	}
	for field, fu := range dec.files {
		res.Files[field] = *fu
	}

	fu, ok := res.Files[FileField]
	if !ok {
		logger.Debug().Int("files", len(res.Files)).Msg("no file part named file")
		return nil, ErrMissingFile
	}

	key, err := p.transfer(ctx, fu)
	if err != nil {
		return nil, err
	}
	res.Key = key

	switch p.urlMode {
	case URLInclude:
		url, err := p.issue(ctx, key)
		if err != nil {
			return nil, err
		}
		res.URL = url
	case URLLog:
		url, err := p.issue(ctx, key)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("key", key).Str("url", url).Msg("signed url issued")
	}

	return res, nil
}

// receive decodes the body and waits for every staged write to be flushed.
func (p *Pipeline) receive(ctx context.Context, mr *multipart.Reader, dir string, sweeper *Sweeper) (*decoder, error) {
	ctx, span := tracer.Start(ctx, "upload.receive")
	defer span.End()

	coord, gctx := newCoordinator(ctx)
	dec := newDecoder(mr, p.scratch, dir, coord, sweeper)
	decodeErr := dec.decode(gctx)
	if err := coord.wait(decodeErr); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("upload.fields", len(dec.fields)),
		attribute.Int("upload.files", coord.pending))
	return dec, nil
}

func (p *Pipeline) transfer(ctx context.Context, fu FileUpload) (string, error) {
	ctx, span := tracer.Start(ctx, "upload.transfer", trace.WithAttributes(
		attribute.String("upload.key", fu.Name),
		attribute.Int64("upload.size", fu.Size)))
	defer span.End()

	key, err := p.uploader.Upload(ctx, fu.Path)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	p.metrics.recordSize(ctx, fu.Size)
	return key, nil
}

func (p *Pipeline) issue(ctx context.Context, key string) (string, error) {
	ctx, span := tracer.Start(ctx, "upload.issue")
	defer span.End()

	url, err := p.issuer.Issue(ctx, key)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return url, nil
}

// Issuer exposes the pipeline's signed URL issuer for the retrieval endpoint.
func (p *Pipeline) Issuer() *Issuer {
	return p.issuer
}

func multipartBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotMultipart, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("%w: got %s", ErrNotMultipart, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: missing boundary", ErrNotMultipart)
	}
	return boundary, nil
}
