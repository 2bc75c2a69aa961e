// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/elliotnunn/sitfs/internal/decompressioncache"
)

// Environment variables, read once at startup
var (
	cacheEntries = envInt("SITFS_CACHE_N", 64)
	cacheLimit   = envMegabytes("SITFS_CACHE_MB", 64)
	cacheDir     = os.Getenv("SITFS_CACHE_DIR")
	logLevel     = envLevel("SITFS_LOG", slog.LevelWarn)
)

func envInt(name string, dflt int) int {
	if e := os.Getenv(name); e != "" {
		n, err := strconv.Atoi(e)
		if err != nil || n < 0 {
			panic("malformed " + name + " environment variable, should be a whole number: " + e)
		}
		return n
	}
	return dflt
}

func envMegabytes(name string, dflt float64) int {
	f := dflt
	if e := os.Getenv(name); e != "" {
		var err error
		f, err = strconv.ParseFloat(e, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			panic("malformed " + name + " environment variable, should be a number of megabytes: " + e)
		}
	}
	return int(min(f*1024*1024, math.MaxInt32))
}

func envLevel(name string, dflt slog.Level) slog.Level {
	if e := os.Getenv(name); e != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(e)); err != nil {
			panic("malformed " + name + " environment variable, should be debug, info, warn or error: " + e)
		}
		return l
	}
	return dflt
}

// newCache returns nil when caching is switched off with SITFS_CACHE_N=0
func newCache() (*decompressioncache.Cache, error) {
	if cacheEntries == 0 && cacheDir == "" {
		return nil, nil
	}
	if cacheDir != "" {
		return decompressioncache.Open(cacheDir, cacheEntries, cacheLimit)
	}
	return decompressioncache.New(cacheEntries, cacheLimit), nil
}
