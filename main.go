// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Command sitfs lists, tests and extracts classic StuffIt archives.
//
//	sitfs list [-l] [-paths] [-roman] ARCHIVE [PATTERN...]
//	sitfs cat [-check] [-paths] [-roman] ARCHIVE NAME
//	sitfs extract [-o DIR] [-appledouble] [-check] [-roman] ARCHIVE [PATTERN...]
//	sitfs test ARCHIVE
//	sitfs rsrc [-paths] [-roman] ARCHIVE NAME [TYPE/ID]
//
// Archives may be wrapped in xz or MacBinary. Patterns use doublestar syntax.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/elliotnunn/sitfs/internal/archivefile"
	"github.com/elliotnunn/sitfs/internal/decompressioncache"
	"github.com/elliotnunn/sitfs/internal/sit"
)

const usage = `usage:
  sitfs list [-l] [-paths] [-roman] ARCHIVE [PATTERN...]
  sitfs cat [-check] [-paths] [-roman] ARCHIVE NAME
  sitfs extract [-o DIR] [-appledouble] [-check] [-roman] ARCHIVE [PATTERN...]
  sitfs test ARCHIVE
  sitfs rsrc [-paths] [-roman] ARCHIVE NAME [TYPE/ID]
`

var errUsage = errors.New("bad usage")

type command func(args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"list":    cmdList,
	"cat":     cmdCat,
	"extract": cmdExtract,
	"test":    cmdTest,
	"rsrc":    cmdRsrc,
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "sitfs: unknown command %q\n%s", args[0], usage)
		return 2
	}
	if err := cmd(args[1:], stdout, stderr); errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(stderr, usage)
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "sitfs %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func flagSet(name string, stderr io.Writer) *flag.FlagSet {
	fl := flag.NewFlagSet(name, flag.ContinueOnError)
	fl.SetOutput(stderr)
	return fl
}

// session is an open archive along with the resources behind it
type session struct {
	*sit.Archive
	file  *archivefile.File
	cache *decompressioncache.Cache
}

func openArchive(name string, opts ...sit.Option) (*session, error) {
	f, err := archivefile.Open(name)
	if err != nil {
		return nil, err
	}
	p := probe(f, f.Size())
	if p.r == nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w (looks like %s)", name, sit.ErrFormat, p.format)
	}

	cache, err := newCache()
	if err != nil {
		f.Close()
		return nil, err
	}
	if cache != nil {
		opts = append(opts, sit.WithCache(cache))
	}

	a, err := sit.New(p.r, p.size, opts...)
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		f.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	slog.Debug("archiveOpened", "name", name, "members", len(a.Names()),
		"mapped", f.Mapped(), "xz", f.Unwrapped(), "macbinary", p.size != f.Size())
	return &session{Archive: a, file: f, cache: cache}, nil
}

func (s *session) Close() error {
	s.Archive.Close()
	err := s.file.Close()
	if errors.Is(err, fs.ErrClosed) { // the archive closed it already
		err = nil
	}
	if s.cache != nil {
		st := s.cache.Stats()
		slog.Debug("cacheStats", "hits", st.Hits, "misses", st.Misses, "evictions", st.Evictions)
		err = errors.Join(err, s.cache.Close())
	}
	return err
}

func cmdCat(args []string, stdout, stderr io.Writer) error {
	fl := flagSet("cat", stderr)
	check := fl.Bool("check", false, "verify CRCs")
	paths := fl.Bool("paths", false, "name members by their folder path")
	roman := fl.Bool("roman", false, "convert names from Mac OS Roman")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() != 2 {
		return errUsage
	}

	s, err := openArchive(fl.Arg(0), archiveOptions(*paths, *roman, *check)...)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.Open(fl.Arg(1))
	if err != nil {
		return err
	}
	defer m.Close()
	_, err = io.Copy(stdout, m)
	return err
}

func archiveOptions(paths, roman, check bool) []sit.Option {
	var opts []sit.Option
	if paths {
		opts = append(opts, sit.WithFolderPaths())
	}
	if roman {
		opts = append(opts, sit.WithMacRomanNames())
	}
	if check {
		opts = append(opts, sit.WithChecksums())
	}
	return opts
}
