package devio

import (
	"os"
	"testing"
	"unsafe"

	"github.com/lvm2go/lvm2core/internal/devcache"
)

func TestNewAlignsScratchBuffer(t *testing.T) {
	io := New(true)
	if len(io.aligned) != io.pageSize {
		t.Fatalf("aligned buffer length = %d, want %d", len(io.aligned), io.pageSize)
	}
	addr := uintptrOf(io.aligned)
	if addr%uintptr(io.pageSize) != 0 {
		t.Fatalf("aligned buffer not page-aligned: addr=%x pageSize=%d", addr, io.pageSize)
	}
}

func TestPageFloor(t *testing.T) {
	io := New(true)
	ps := uint64(io.pageSize)

	cases := []struct{ off, want uint64 }{
		{0, 0},
		{1, 0},
		{ps - 1, 0},
		{ps, ps},
		{ps + 1, ps},
		{3 * ps, 3 * ps},
		{3*ps + 17, 3 * ps},
	}
	for _, c := range cases {
		if got := io.pageFloor(c.off); got != c.want {
			t.Errorf("pageFloor(%d) = %d, want %d", c.off, got, c.want)
		}
	}
}

func TestWriteInTestModeSkipsIO(t *testing.T) {
	io := New(true)
	f := &File{io: io, fd: 3, dev: &devcache.Device{Aliases: []string{"/dev/fake"}}}

	n, err := f.Write(17, []byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if n != len("hello world") {
		t.Fatalf("n = %d, want %d", n, len("hello world"))
	}
}

func TestZeroInTestModeSkipsIO(t *testing.T) {
	io := New(true)
	f := &File{io: io, fd: 3, dev: &devcache.Device{Aliases: []string{"/dev/fake"}}}

	if err := f.Zero(0, 4096); err != nil {
		t.Fatal(err)
	}
}

func TestReadOnUnopenedDeviceFails(t *testing.T) {
	f := &File{io: New(true), fd: -1, dev: &devcache.Device{Aliases: []string{"/dev/fake"}}}
	if _, err := f.Read(0, 512); err == nil {
		t.Fatal("expected an error reading from an unopened device")
	}
}

func TestWriteOnUnopenedDeviceFails(t *testing.T) {
	f := &File{io: New(true), fd: -1, dev: &devcache.Device{Aliases: []string{"/dev/fake"}}}
	if _, err := f.Write(0, []byte("x")); err == nil {
		t.Fatal("expected an error writing to an unopened device")
	}
}

func TestCloseOnUnopenedDeviceFails(t *testing.T) {
	f := &File{io: New(true), fd: -1, dev: &devcache.Device{Aliases: []string{"/dev/fake"}}}
	if err := f.Close(); err == nil {
		t.Fatal("expected an error closing an already-closed device")
	}
}

func TestOpenRejectsDeviceWithNoAlias(t *testing.T) {
	io := New(true)
	_, err := io.Open(&devcache.Device{}, os.O_RDONLY)
	if err == nil {
		t.Fatal("expected an error opening a device with no aliases")
	}
}

func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
