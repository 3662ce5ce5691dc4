package spi

import (
	"bytes"
	"path/filepath"
	"testing"

	"adda-hat/pkg/errors"
)

func TestDevicePath(t *testing.T) {
	if got := DevicePath(0, 0); got != "/dev/spidev0.0" {
		t.Errorf("DevicePath(0,0) = %q", got)
	}
	if got := DevicePath(1, 2); got != "/dev/spidev1.2" {
		t.Errorf("DevicePath(1,2) = %q", got)
	}
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "spidev9.9"), 0)
	if err == nil {
		t.Fatal("Open on missing node should fail")
	}
	if !errors.IsCode(err, errors.CodeDeviceUnavailable) {
		t.Errorf("error code = %q, want DEVICE_UNAVAILABLE", errors.CodeOf(err))
	}
}

func TestSimConnScript(t *testing.T) {
	conn := NewSimConn([]byte{0x30}, []byte{0x01, 0x02, 0x03})

	r := make([]byte, 1)
	if err := conn.Exchange([]byte{0x10}, r); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0x30 {
		t.Errorf("first response = %#x, want 0x30", r[0])
	}

	r = make([]byte, 3)
	conn.Exchange([]byte{0x01, 0x00, 0x00}, r)
	if !bytes.Equal(r, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("second response = %v", r)
	}

	// Past the end of the script the bus reads zeros.
	r = []byte{0xFF, 0xFF}
	conn.Exchange([]byte{0x00, 0x00}, r)
	if !bytes.Equal(r, []byte{0x00, 0x00}) {
		t.Errorf("off-script response = %v, want zeros", r)
	}

	if len(conn.Writes) != 3 {
		t.Fatalf("recorded %d writes, want 3", len(conn.Writes))
	}
	if !bytes.Equal(conn.Writes[0], []byte{0x10}) {
		t.Errorf("first write = %v", conn.Writes[0])
	}
	if !bytes.Equal(conn.LastWrite(), []byte{0x00, 0x00}) {
		t.Errorf("LastWrite = %v", conn.LastWrite())
	}
}

func TestSimConnErrInjection(t *testing.T) {
	conn := NewSimConn()
	conn.Err = errors.New(errors.CodeResource, "spi.exchange", "injected")
	if err := conn.Exchange([]byte{0x00}, nil); err == nil {
		t.Fatal("injected error not surfaced")
	}
	if err := conn.Exchange([]byte{0x00}, nil); err != nil {
		t.Fatalf("error should clear after one transfer: %v", err)
	}
}
