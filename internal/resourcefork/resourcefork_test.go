// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package resourcefork

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"testing"

	"github.com/elliotnunn/sitfs/internal/appledouble"
)

type testRes struct {
	t    string
	id   int16
	name string
	data string
}

// makeFork lays out resources in the order given, grouping the map by type
func makeFork(list ...testRes) []byte {
	var data bytes.Buffer
	offsets := make([]int, len(list))
	for i, r := range list {
		offsets[i] = data.Len()
		binary.Write(&data, binary.BigEndian, uint32(len(r.data)))
		data.WriteString(r.data)
	}

	var types []string
	byType := map[string][]int{}
	for i, r := range list {
		if byType[r.t] == nil {
			types = append(types, r.t)
		}
		byType[r.t] = append(byType[r.t], i)
	}

	var typeList, refList, nameList bytes.Buffer
	binary.Write(&typeList, binary.BigEndian, uint16(len(types)-1))
	refBase := 2 + 8*len(types)
	for _, t := range types {
		typeList.WriteString(t)
		binary.Write(&typeList, binary.BigEndian, uint16(len(byType[t])-1))
		binary.Write(&typeList, binary.BigEndian, uint16(refBase+refList.Len()))
		for _, i := range byType[t] {
			r := list[i]
			nameof := int16(-1)
			if r.name != "" {
				nameof = int16(nameList.Len())
				nameList.WriteByte(byte(len(r.name)))
				nameList.WriteString(r.name)
			}
			binary.Write(&refList, binary.BigEndian, r.id)
			binary.Write(&refList, binary.BigEndian, nameof)
			binary.Write(&refList, binary.BigEndian, uint32(offsets[i]))
			binary.Write(&refList, binary.BigEndian, uint32(0))
		}
	}

	var rmap bytes.Buffer
	rmap.Write(make([]byte, 24))
	binary.Write(&rmap, binary.BigEndian, uint16(28))
	binary.Write(&rmap, binary.BigEndian, uint16(28+typeList.Len()+refList.Len()))
	rmap.Write(typeList.Bytes())
	rmap.Write(refList.Bytes())
	rmap.Write(nameList.Bytes())

	fork := make([]byte, 256)
	binary.BigEndian.PutUint32(fork[0:], 256)
	binary.BigEndian.PutUint32(fork[4:], uint32(256+data.Len()))
	binary.BigEndian.PutUint32(fork[8:], uint32(data.Len()))
	binary.BigEndian.PutUint32(fork[12:], uint32(rmap.Len()))
	fork = append(fork, data.Bytes()...)
	return append(fork, rmap.Bytes()...)
}

var sample = []testRes{
	{"ICN#", 128, "", "icon"},
	{"STR ", -16396, "Version", "1.0"},
	{"ICN#", 129, "", ""},
}

func checkSample(t *testing.T, list []Resource) {
	t.Helper()
	if len(list) != 3 {
		t.Fatalf("expected 3 resources got %d", len(list))
	}
	for i, expect := range sample {
		r := list[i]
		if r.Path() != expect.t+"/"+strconv.Itoa(int(expect.id)) || string(r.Name) != expect.name {
			t.Errorf("resource %d: got %s %q", i, r.Path(), r.Name)
		}
		got, err := io.ReadAll(io.NewSectionReader(r, 0, r.Size()))
		if err != nil || string(got) != expect.data {
			t.Errorf("%s: expected %q got %q (%v)", r.Path(), expect.data, got, err)
		}
	}
	if list[1].Name == nil || list[0].Name != nil {
		t.Error("only the string resource is named")
	}
}

func TestParse(t *testing.T) {
	list, err := Parse(bytes.NewReader(makeFork(sample...)))
	if err != nil {
		t.Fatal(err)
	}
	checkSample(t, list)

	r, ok := Find(list, [4]byte{'S', 'T', 'R', ' '}, -16396)
	if !ok || string(r.Name) != "Version" {
		t.Errorf("Find failed: %v %q", ok, r.Name)
	}
	if _, ok := Find(list, [4]byte{'S', 'T', 'R', ' '}, 0); ok {
		t.Error("found a resource that does not exist")
	}
}

func TestInsideAppleDouble(t *testing.T) {
	fork := makeFork(sample...)
	meta := appledouble.AppleDouble{Type: [4]byte{'A', 'P', 'P', 'L'}}
	ad, size := meta.WithResourceFork(bytes.NewReader(fork), int64(len(fork)))
	list, err := Parse(io.NewSectionReader(ad, 0, size))
	if err != nil {
		t.Fatal(err)
	}
	checkSample(t, list)
	if list[0].Offset() <= 256 {
		t.Errorf("offset %d does not account for the AppleDouble header", list[0].Offset())
	}
}

func TestEmpty(t *testing.T) {
	fork := makeFork()
	list, err := Parse(bytes.NewReader(fork))
	if err != nil || len(list) != 0 {
		t.Errorf("expected nothing, got %d resources (%v)", len(list), err)
	}
}

func TestCorrupt(t *testing.T) {
	fork := makeFork(sample...)
	cases := map[string][]byte{
		"empty file":     nil,
		"truncated map":  fork[:len(fork)-10],
		"tiny map":       patch(fork, 12, 4),
		"data too short": patch(fork, 8, 6),
	}
	for name, data := range cases {
		if _, err := Parse(bytes.NewReader(data)); !errors.Is(err, ErrFormat) {
			t.Errorf("%s: expected ErrFormat got %v", name, err)
		}
	}
}

func patch(fork []byte, at int, v uint32) []byte {
	ret := bytes.Clone(fork)
	binary.BigEndian.PutUint32(ret[at:], v)
	return ret
}
