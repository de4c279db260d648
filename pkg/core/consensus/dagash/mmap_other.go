//go:build !darwin && !linux

package dagash

import (
	"fmt"
	"os"
)

// mapping emulates a shared file mapping with a heap copy on hosts without
// the unix mmap calls. Writes reach the file on flush.
type mapping struct {
	file     *os.File
	data     []byte
	writable bool
}

func mapFile(f *os.File, writable bool) (*mapping, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stating %s: %w", f.Name(), err)
	}
	data := make([]byte, info.Size())
	if _, err := f.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	return &mapping{file: f, data: data, writable: writable}, nil
}

func (m *mapping) flush() error {
	if !m.writable {
		return nil
	}
	if _, err := m.file.WriteAt(m.data, 0); err != nil {
		return fmt.Errorf("writing %s: %w", m.file.Name(), err)
	}
	return m.file.Sync()
}

func (m *mapping) seal() error {
	m.writable = false
	return nil
}

func (m *mapping) close() error {
	m.data = nil
	return m.file.Close()
}
