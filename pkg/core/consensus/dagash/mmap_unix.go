//go:build darwin || linux

package dagash

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapping is a file memory mapped MAP_SHARED, so writes through data land
// in the page cache and other processes see the same pages.
type mapping struct {
	file *os.File
	data []byte
}

// mapFile maps the whole of f, read-only unless writable is set.
func mapFile(f *os.File, writable bool) (*mapping, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stating %s: %w", f.Name(), err)
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("memory-mapping %s: %w", f.Name(), err)
	}
	return &mapping{file: f, data: data}, nil
}

// flush writes dirty pages back to the file.
func (m *mapping) flush() error {
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("syncing %s: %w", m.file.Name(), err)
	}
	return nil
}

// seal drops write access once generation is done.
func (m *mapping) seal() error {
	if err := unix.Mprotect(m.data, unix.PROT_READ); err != nil {
		return fmt.Errorf("protecting %s: %w", m.file.Name(), err)
	}
	return nil
}

// close unmaps the memory and closes the file.
func (m *mapping) close() error {
	var firstErr error
	if err := unix.Munmap(m.data); err != nil {
		firstErr = fmt.Errorf("unmapping %s: %w", m.file.Name(), err)
	}
	if err := m.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.data = nil
	return firstErr
}
