package archivefile

import (
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
)

// made by xz(1), holds the string below
const xzHex = "fd377a585a0000016922de360200210116000000742fe5a301002553495421000168656c6c6f2066726f6d20696e7369646520616e20787a20777261707065720a0000000d4b81d300013a26afee22d79042990d010000000001595a"

const xzText = "SIT!\x00\x01hello from inside an xz wrapper\n"

func write(t *testing.T, data []byte) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "archive.sit")
	if err := os.WriteFile(name, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return name
}

func expectContents(t *testing.T, f *File, expect string) {
	t.Helper()
	if f.Size() != int64(len(expect)) {
		t.Errorf("expected size %d got %d", len(expect), f.Size())
	}
	got, err := io.ReadAll(io.NewSectionReader(f, 0, f.Size()))
	if err != nil || string(got) != expect {
		t.Errorf("expected %q got %q (%v)", expect, got, err)
	}
	sum, err := f.Digest()
	if err != nil || sum != xxhash.Sum64String(expect) {
		t.Errorf("digest mismatch (%v)", err)
	}
}

func TestPlain(t *testing.T) {
	const text = "SIT!\x00\x00plain archive bytes"
	name := write(t, []byte(text))

	for _, opts := range [][]Option{nil, {WithoutMmap()}} {
		f, err := Open(name, opts...)
		if err != nil {
			t.Fatal(err)
		}
		if f.Unwrapped() {
			t.Error("plain file reported as unwrapped")
		}
		if opts != nil && f.Mapped() {
			t.Error("WithoutMmap was ignored")
		}
		expectContents(t, f, text)

		buf := make([]byte, 10)
		if n, err := f.ReadAt(buf, int64(len(text))-3); n != 3 || err != io.EOF {
			t.Errorf("short read at the end: %d %v", n, err)
		}
		if err := f.Close(); err != nil {
			t.Error(err)
		}
		if _, err := f.ReadAt(buf, 0); !errors.Is(err, fs.ErrClosed) {
			t.Errorf("read after close: expected fs.ErrClosed got %v", err)
		}
	}
}

func TestEmpty(t *testing.T) {
	f, err := Open(write(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Mapped() || f.Size() != 0 {
		t.Errorf("empty file: mapped %v size %d", f.Mapped(), f.Size())
	}
}

func TestXZ(t *testing.T) {
	packed, _ := hex.DecodeString(xzHex)
	f, err := Open(write(t, packed))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !f.Unwrapped() {
		t.Error("xz file not unwrapped")
	}
	expectContents(t, f, xzText)
}

func TestXZLimit(t *testing.T) {
	packed, _ := hex.DecodeString(xzHex)
	if _, err := Open(write(t, packed), WithXZLimit(10)); err == nil {
		t.Error("expected the size limit to be enforced")
	}
}

func TestXZCorrupt(t *testing.T) {
	packed, _ := hex.DecodeString(xzHex)
	packed[40] ^= 0xff
	if f, err := Open(write(t, packed)); err == nil {
		f.Close()
		t.Error("expected an error from a damaged xz stream")
	}
}

func TestNotRegular(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("opened a directory")
	}
}
