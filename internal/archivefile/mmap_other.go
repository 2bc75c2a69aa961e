//go:build !unix

package archivefile

import "os"

func mmap(f *os.File, size int64) ([]byte, error) { return nil, errNoMap }

func munmap(b []byte) error { return nil }
