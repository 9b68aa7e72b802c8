package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog/log"
)

// FileUpload describes one file part received in the form.
type FileUpload struct {
	Field string
	// Filename is the name sent by the client.
	Filename string
	// Name is the sanitized filename, the base name of Path.
	Name string
	Path string
	Size int64
}

type decoder struct {
	mr      *multipart.Reader
	fs      billy.Filesystem
	dir     string
	coord   *coordinator
	sweeper *Sweeper

	fields map[string]string
	files  map[string]*FileUpload
}

func newDecoder(mr *multipart.Reader, fs billy.Filesystem, dir string, coord *coordinator, sweeper *Sweeper) *decoder {
	return &decoder{
		mr:      mr,
		fs:      fs,
		dir:     dir,
		coord:   coord,
		sweeper: sweeper,
		fields:  make(map[string]string),
		files:   make(map[string]*FileUpload),
	}
}

// decode consumes the body part by part. Every file part is handed to a sink
// whose write is tracked by the coordinator. decode returns once the closing
// boundary has been read, which says nothing about pending writes.
func (d *decoder) decode(ctx context.Context) error {
	logger := log.Ctx(ctx)

	for index := 0; ; index++ {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		part, err := d.mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read multipart body: %w", err)
		}

		name := part.FormName()
		if name == "" {
			logger.Debug().
				Int("part", index).
				Str("content_disposition", part.Header.Get("Content-Disposition")).
				Msg("Skipped part without form name")
			part.Close()
			continue
		}

		filename, isFile := partFilename(part)
		if !isFile {
			value, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return fmt.Errorf("failed to read field %s: %w", name, err)
			}
			d.fields[name] = string(value)
			logger.Debug().
				Str("field", name).
				Str("value", string(value)).
				Msg("Processed field")
			continue
		}

		if err := d.stage(ctx, index, name, filename, part); err != nil {
			part.Close()
			return err
		}
		part.Close()
	}
}

func (d *decoder) stage(ctx context.Context, index int, field, filename string, part io.Reader) error {
	clean, err := SanitizeFilename(filename)
	if err != nil {
		return err
	}

	fu := &FileUpload{
		Field:    field,
		Filename: filename,
		Name:     clean,
		Path:     d.fs.Join(d.dir, strconv.Itoa(index), clean),
	}
	d.sweeper.Track(fu.Path)
	d.files[field] = fu

	s := newSink(d.fs, fu.Path)
	d.coord.track(func() error {
		n, err := s.run()
		fu.Size = n
		return err
	})

	log.Ctx(ctx).Debug().
		Str("field", field).
		Str("file_name", filename).
		Str("staged_file", fu.Path).
		Msg("Processed file")

	if _, err := io.Copy(s, part); err != nil {
		s.abort(err)
		return fmt.Errorf("failed to stream file %s: %w", filename, err)
	}
	s.finish()
	return nil
}

// partFilename reports the filename parameter of the part's
// Content-Disposition. A present but empty filename still marks a file part.
func partFilename(p *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	filename, ok := params["filename"]
	return filename, ok
}
