//go:build unix

package blockdev

import (
	"os"

	"golang.org/x/sys/unix"
)

// preadFunc returns unix.Pread, used as Device's ReadAt implementation
// on unix platforms; Device.ReadAt passes the file's descriptor to it.
func preadFunc(f *os.File) func(fd int, p []byte, off int64) (int, error) {
	return unix.Pread
}
