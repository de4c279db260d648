package dagash

import (
	"encoding/binary"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/mem"
)

// isLittleEndian returns whether the local system is running in little or big
// endian byte order.
func isLittleEndian() bool {
	return binary.NativeEndian.Uint16([]byte{0x04, 0x03}) == 0x0304
}

// allocate returns a zeroed heap buffer of size bytes. It refuses sizes the
// host cannot currently provide rather than letting the runtime die on an
// out-of-memory fault halfway through a build.
func allocate(size uint64) ([]byte, error) {
	if vm, err := mem.VirtualMemory(); err == nil && size > vm.Available {
		return nil, fmt.Errorf("%w: need %s, %s available", ErrInsufficientMemory,
			humanize.IBytes(size), humanize.IBytes(vm.Available))
	}
	return make([]byte, size), nil
}
