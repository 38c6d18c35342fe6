package chattypes

import "io"

// FileRef describes a file selected for sending, before any upload takes
// place. Size and MimeType are validated against the configured allow-list
// ahead of the network call.
type FileRef struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.Reader
}
