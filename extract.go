// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/elliotnunn/sitfs/internal/appledouble"
	"github.com/elliotnunn/sitfs/internal/sit"
	"golang.org/x/sync/errgroup"
)

func cmdExtract(args []string, stdout, stderr io.Writer) error {
	fl := flagSet("extract", stderr)
	dir := fl.String("o", ".", "destination directory")
	double := fl.Bool("appledouble", false, "write resource forks and Finder info to ._name sidecars")
	check := fl.Bool("check", false, "verify CRCs")
	roman := fl.Bool("roman", false, "convert names from Mac OS Roman")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 1 {
		return errUsage
	}

	s, err := openArchive(fl.Arg(0), archiveOptions(true, *roman, *check)...)
	if err != nil {
		return err
	}
	defer s.Close()

	names, err := selectNames(s.Names(), fl.Args()[1:])
	if err != nil {
		return err
	}

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, name := range names {
		g.Go(func() error {
			if err := extractOne(s, *dir, name, *double); err != nil {
				slog.Error("memberExtractError", "name", name, "err", err)
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d members failed", n, len(names))
	}
	return nil
}

func extractOne(s *session, dir, name string, double bool) error {
	e, _ := s.Entry(name)
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("refusing to write outside %s", dir)
	}
	dest := filepath.Join(dir, filepath.FromSlash(name))

	m, err := s.Open(name)
	if err != nil {
		return err
	}
	defer m.Close()

	if !double {
		return writeFile(dest, m, e)
	}

	meta := appledouble.AppleDouble{
		CreateTime: e.CreateTime,
		ModTime:    e.ModTime,
		Flags:      e.FinderFlags,
		Type:       e.Type,
		Creator:    e.Creator,
	}
	if e.Fork == sit.ResourceFork {
		base := strings.TrimSuffix(dest, sit.ResourceSuffix)
		ad, size := meta.WithResourceFork(m, m.Size())
		return writeFile(appledouble.Sidecar(filepath.ToSlash(base)), io.NewSectionReader(ad, 0, size), e)
	}

	if err := writeFile(dest, m, e); err != nil {
		return err
	}
	if !s.hasResourceFork(name) { // otherwise the resource fork job writes the sidecar
		ad, size := meta.WithResourceFork(nil, 0)
		return writeFile(appledouble.Sidecar(filepath.ToSlash(dest)), io.NewSectionReader(ad, 0, size), e)
	}
	return nil
}

// hasResourceFork distinguishes a real resource fork from a data fork whose name ends in ".rsrc"
func (s *session) hasResourceFork(name string) bool {
	e, ok := s.Entry(name + sit.ResourceSuffix)
	return ok && e.Fork == sit.ResourceFork
}

func writeFile(dest string, r io.Reader, e sit.Entry) error {
	dest = filepath.FromSlash(dest)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	err = errors.Join(err, f.Close())
	if err != nil {
		os.Remove(dest)
		return err
	}
	if !e.ModTime.IsZero() {
		os.Chtimes(dest, e.ModTime, e.ModTime)
	}
	return nil
}

func cmdTest(args []string, stdout, stderr io.Writer) error {
	fl := flagSet("test", stderr)
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() != 1 {
		return errUsage
	}

	s, err := openArchive(fl.Arg(0), sit.WithChecksums())
	if err != nil {
		return err
	}
	defer s.Close()

	names := s.Names()
	results := make([]error, len(names))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, name := range names {
		g.Go(func() error {
			m, err := s.Open(name)
			if err == nil {
				_, err = io.Copy(io.Discard, m)
				m.Close()
			}
			results[i] = err
			return nil
		})
	}
	g.Wait()

	digest, err := s.file.Digest()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "archive %016x\n", digest)

	failed := 0
	for i, name := range names {
		status := "ok"
		var merr *sit.MemberError
		if errors.As(results[i], &merr) {
			status = merr.Kind().String()
		} else if results[i] != nil {
			status = "io"
		}
		if results[i] != nil {
			failed++
			slog.Warn("memberTestError", "name", name, "err", results[i])
		}
		fmt.Fprintf(stdout, "%-11s %s\n", status, name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d members failed", failed, len(names))
	}
	return nil
}
