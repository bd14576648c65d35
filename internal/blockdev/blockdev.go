// Package blockdev opens a raw volume image or block device for the
// Positional backing-reader discipline (spec §5): concurrent,
// lock-free positional reads against a shared file descriptor. On unix
// platforms this goes through pread(2) directly via golang.org/x/sys
// rather than *os.File's own ReadAt; grounded on hivekit's
// internal/mmfile and dirty-tracker packages, which reach past os.File
// the same way for device-level I/O. Open takes the platform-specific
// read function from preadFunc in blockdev_unix.go / blockdev_other.go.
package blockdev

import (
	"fmt"
	"os"
)

// Device is a positional reader over an open volume image or block
// device, safe for concurrent ReadAt calls from multiple goroutines.
type Device struct {
	f    *os.File
	size int64
	pread func(fd int, p []byte, off int64) (int, error)
}

// Open opens path for read-only positional access.
func Open(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		// Block devices report a zero regular-file size; fall back to
		// seeking to the end to discover the real extent.
		if end, err := f.Seek(0, os.SEEK_END); err == nil {
			size = end
		}
		if _, err := f.Seek(0, os.SEEK_SET); err != nil {
			f.Close()
			return nil, fmt.Errorf("blockdev: rewind %s: %w", path, err)
		}
	}
	return &Device{f: f, size: size, pread: preadFunc(f)}, nil
}

// ReadAt implements io.ReaderAt. On unix it is backed directly by
// pread(2); elsewhere it falls back to os.File.ReadAt, which the Go
// runtime itself implements without disturbing a shared seek cursor.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.pread(int(d.f.Fd()), p, off)
	if err != nil {
		return n, fmt.Errorf("blockdev: read at %d: %w", off, err)
	}
	return n, nil
}

// Size returns the device's byte extent as discovered at Open time.
func (d *Device) Size() int64 { return d.size }

// Close closes the underlying file descriptor.
func (d *Device) Close() error { return d.f.Close() }
