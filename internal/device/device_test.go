package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bootcache/bootcache/pkg/errors"
)

func TestFileDeviceReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	content := make([]byte, 8192)
	for i := range content {
		content[i] = byte(i % 7)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	buf := make([]byte, 100)
	if err := d.ReadAt(context.Background(), buf, 4000); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i, b := range buf {
		if want := byte((4000 + i) % 7); b != want {
			t.Fatalf("byte %d: got %d, want %d", i, b, want)
		}
	}

	// Reads past the end surface as device read errors.
	if err := d.ReadAt(context.Background(), buf, 8150); !errors.IsCode(err, errors.ErrCodeDeviceRead) {
		t.Fatalf("got %v, want DEVICE_READ", err)
	}
}

func TestFileDeviceHonorsCanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, 512), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.ReadAt(ctx, make([]byte, 16), 0); err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestMemDevicePatternAndBounds(t *testing.T) {
	d := NewMemDevice(1024)

	buf := make([]byte, 32)
	if err := d.ReadAt(context.Background(), buf, 500); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i, b := range buf {
		if want := byte((500 + i) % 251); b != want {
			t.Fatalf("byte %d: got %d, want %d", i, b, want)
		}
	}

	if err := d.ReadAt(context.Background(), buf, 1020); err == nil {
		t.Fatal("expected error reading past device end")
	}
}

func TestMemDeviceReadHook(t *testing.T) {
	d := NewMemDevice(1024)

	var gotOffset, gotLength uint64
	d.ReadHook = func(ctx context.Context, offset, length uint64) error {
		gotOffset, gotLength = offset, length
		if offset == 256 {
			return fmt.Errorf("injected fault")
		}
		return nil
	}

	buf := make([]byte, 64)
	if err := d.ReadAt(context.Background(), buf, 128); err != nil {
		t.Fatalf("hooked read: %v", err)
	}
	if gotOffset != 128 || gotLength != 64 {
		t.Fatalf("hook saw [%d, %d), want [128, 64)", gotOffset, gotLength)
	}

	if err := d.ReadAt(context.Background(), buf, 256); err == nil {
		t.Fatal("expected injected fault")
	}
}

func TestMemDeviceOverwrite(t *testing.T) {
	d := NewMemDevice(1024)
	d.Overwrite(10, []byte{0xff, 0xff})

	buf := make([]byte, 4)
	if err := d.ReadAt(context.Background(), buf, 9); err != nil {
		t.Fatal(err)
	}
	want := []byte{byte(9 % 251), 0xff, 0xff, byte(12 % 251)}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: got %d, want %d", i, buf[i], want[i])
		}
	}
}
