package installer

import (
	"fmt"
	"strings"
)

// Failure is one artifact that could not be put in place.
type Failure struct {
	Artifact string
	URL      string
	Path     string
	Reason   string
}

// BatchError lists every artifact of a batch that failed, with enough detail for
// the user to fetch them by hand.
type BatchError struct {
	Pipeline string
	Failures []Failure
}

func (e *BatchError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d artifact(s) of %s could not be installed; download them manually:", len(e.Failures), e.Pipeline)

	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %s: %s -> %s (%s)", f.Artifact, orUnknown(f.URL), f.Path, f.Reason)
	}

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "<no source reached>"
	}

	return s
}
