package upload

import "errors"

// MissingFileMessage is returned to clients that did not send a file part
// under the expected field name.
const MissingFileMessage = "Please provide 'file' in form-data"

var (
	ErrMissingFile     = errors.New(MissingFileMessage)
	ErrMissingFilename = errors.New("filename is required")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrNotMultipart    = errors.New("request content type must be multipart/form-data")
)
