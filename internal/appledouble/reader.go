// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package appledouble

import (
	"io"
	"io/fs"
)

// readerAt is the sidecar prefix followed directly by the fork
type readerAt struct {
	ad   []byte
	fork io.ReaderAt
}

func (r *readerAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fs.ErrInvalid
	}
	if off < int64(len(r.ad)) {
		n = copy(p, r.ad[off:])
		if n == len(p) {
			return n, nil
		}
	}
	fn, err := r.fork.ReadAt(p[n:], max(0, off-int64(len(r.ad))))
	return n + fn, err
}
