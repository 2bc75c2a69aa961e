// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/elliotnunn/sitfs/internal/sit"
)

// selectNames keeps the names that match any pattern, or all of them if there are no patterns
func selectNames(names []string, patterns []string) ([]string, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, p)
		}
	}
	if len(patterns) == 0 {
		return names, nil
	}
	var ret []string
	for _, n := range names {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, n); ok {
				ret = append(ret, n)
				break
			}
		}
	}
	return ret, nil
}

func cmdList(args []string, stdout, stderr io.Writer) error {
	fl := flagSet("list", stderr)
	long := fl.Bool("l", false, "show fork, method, sizes, type, creator and date")
	paths := fl.Bool("paths", false, "name members by their folder path")
	roman := fl.Bool("roman", false, "convert names from Mac OS Roman")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() < 1 {
		return errUsage
	}

	s, err := openArchive(fl.Arg(0), archiveOptions(*paths, *roman, false)...)
	if err != nil {
		return err
	}
	defer s.Close()

	names, err := selectNames(s.Names(), fl.Args()[1:])
	if err != nil {
		return err
	}
	for _, name := range names {
		if *long {
			e, _ := s.Entry(name)
			fmt.Fprintln(stdout, formatEntry(e))
		} else {
			fmt.Fprintln(stdout, name)
		}
	}
	return nil
}

func formatEntry(e sit.Entry) string {
	const tfmt = "2006-01-02T15:04:05"
	return fmt.Sprintf("%-4s %-7s %10d %10d %s %s %s  %s",
		e.Fork, e.Method, e.CompressedSize, e.UncompressedSize,
		fourCC(e.Type), fourCC(e.Creator), e.ModTime.Format(tfmt), e.Name)
}

func fourCC(c [4]byte) string {
	if c == [4]byte{} {
		return "----"
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '.'
		}
		return r
	}, string(c[:]))
}
