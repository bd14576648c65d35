//go:build !unix

package blockdev

import "os"

// preadFunc falls back to os.File.ReadAt where pread(2) is unavailable
// (Windows): the standard library's own implementation is safe for
// concurrent use without disturbing a shared seek cursor.
func preadFunc(f *os.File) func(fd int, p []byte, off int64) (int, error) {
	return func(_ int, p []byte, off int64) (int, error) {
		return f.ReadAt(p, off)
	}
}
