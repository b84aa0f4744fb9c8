package downloader

import "github.com/italolelis/mocap_installer/internal/transfer"

// Request is one concrete download: a single candidate URL for an artifact.
type Request struct {
	URL string
	Dir string
	// Filename overrides the name learned from the server.
	Filename string
	// Checksum is an optional lowercase hex MD5.
	Checksum string
	Auth     transfer.Auth
}

// Result is the outcome of resolving a Request or an artifact. Failure is reported
// here rather than as an error.
type Result struct {
	Path             string
	URL              string
	Success          bool
	Attempts         int
	BytesTransferred int64
	// ChecksumMismatch is set when a completed file did not match the expected MD5.
	// The file is kept and the result still counts as a success.
	ChecksumMismatch bool
}
