// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elliotnunn/sitfs/internal/resourcefork"
	"github.com/elliotnunn/sitfs/internal/sit"
	"golang.org/x/text/encoding/charmap"
)

// cmdRsrc lists the resources in a member's resource fork, or prints one of them
func cmdRsrc(args []string, stdout, stderr io.Writer) error {
	fl := flagSet("rsrc", stderr)
	paths := fl.Bool("paths", false, "name members by their folder path")
	roman := fl.Bool("roman", false, "convert names from Mac OS Roman")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() != 2 && fl.NArg() != 3 {
		return errUsage
	}

	s, err := openArchive(fl.Arg(0), archiveOptions(*paths, *roman, false)...)
	if err != nil {
		return err
	}
	defer s.Close()

	name := fl.Arg(1)
	if !strings.HasSuffix(name, sit.ResourceSuffix) && s.Has(name+sit.ResourceSuffix) {
		name += sit.ResourceSuffix
	}
	m, err := s.Open(name)
	if err != nil {
		return err
	}
	defer m.Close()

	list, err := resourcefork.Parse(m)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if fl.NArg() == 2 {
		for _, r := range list {
			rname, _ := charmap.Macintosh.NewDecoder().Bytes(r.Name)
			fmt.Fprintf(stdout, "%-11s %8d  %s\n", r.Path(), r.Size(), rname)
		}
		return nil
	}

	t, id, err := parseResourcePath(fl.Arg(2))
	if err != nil {
		return err
	}
	r, ok := resourcefork.Find(list, t, id)
	if !ok {
		return fmt.Errorf("%s: no resource %s", name, fl.Arg(2))
	}
	_, err = io.Copy(stdout, io.NewSectionReader(r, 0, r.Size()))
	return err
}

// parseResourcePath accepts "TYPE/ID", where TYPE is exactly four bytes
func parseResourcePath(p string) (t [4]byte, id int16, err error) {
	i := strings.LastIndexByte(p, '/')
	if i != 4 {
		return t, 0, fmt.Errorf("resource %q is not TYPE/ID", p)
	}
	n, err := strconv.ParseInt(p[5:], 10, 16)
	if err != nil {
		return t, 0, fmt.Errorf("resource %q: %w", p, err)
	}
	copy(t[:], p)
	return t, int16(n), nil
}
