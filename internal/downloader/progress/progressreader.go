package progress

import (
	"errors"
	"io"
)

// Reader wraps an io.Reader and reports cumulative bytes read every interval bytes
// and once more at EOF.
type Reader struct {
	r          io.Reader
	total      int64
	interval   int64
	onProgress func(read, total int64)

	read       int64
	sinceLast  int64
	reportedAt int64
}

func NewReader(r io.Reader, total, interval int64, onProgress func(read, total int64)) *Reader {
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}

	return &Reader{
		r:          r,
		total:      total,
		interval:   interval,
		onProgress: onProgress,
		reportedAt: -1,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceLast += int64(n)

		if pr.interval > 0 && pr.sinceLast >= pr.interval {
			pr.report()
		}
	}

	if errors.Is(err, io.EOF) && pr.reportedAt != pr.read {
		pr.report()
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) report() {
	pr.onProgress(pr.read, pr.total)
	pr.sinceLast = 0
	pr.reportedAt = pr.read
}
