package dagash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/disk"

	"github.com/chronodrachma/dagpow/pkg/core/types"
)

var (
	ErrClosed             = errors.New("dagash: handle is closed")
	ErrCancelled          = errors.New("dagash: generation cancelled")
	ErrInsufficientMemory = errors.New("dagash: insufficient memory")
	ErrInsufficientSpace  = errors.New("dagash: insufficient disk space")
	ErrInvalidMagic       = errors.New("dagash: invalid dump magic")
)

// Kind selects which artifact a file holds.
type Kind string

const (
	KindCache   Kind = "cache"
	KindDataset Kind = "full"
)

// Outcome reports what Prepare found on disk.
type Outcome int

const (
	// OutcomeFail means storage could not be used at all.
	OutcomeFail Outcome = iota
	// OutcomeMatch means an existing file has the right size and magic and
	// its payload can be used as is.
	OutcomeMatch
	// OutcomeMismatch means no usable file existed (or re-creation was
	// forced); a pre-sized file was created and must be fully populated.
	OutcomeMismatch
	// OutcomeSizeMismatch means a stale file (wrong size or magic) was found
	// and a pre-sized replacement was created that must be fully populated.
	OutcomeSizeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFail:
		return "fail"
	case OutcomeMatch:
		return "match"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeSizeMismatch:
		return "size-mismatch"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// FileName is the canonical name of an artifact: kind, layout revision and
// the first 8 bytes of the seed hash. Test-sized artifacts get a ".test"
// suffix so they never share a file with full-sized ones. Big-endian hosts
// get a ".be" suffix since files are not portable between byte orders.
func FileName(kind Kind, seed types.Hash, test bool) string {
	var mode, endian string
	if test {
		mode = ".test"
	}
	if !isLittleEndian() {
		endian = ".be"
	}
	return fmt.Sprintf("%s-R%d-%x%s%s", kind, Revision, seed[:8], mode, endian)
}

// FilePath joins FileName onto dir.
func FilePath(dir string, kind Kind, seed types.Hash, test bool) string {
	return filepath.Join(dir, FileName(kind, seed, test))
}

// Prepare makes a backing file of size payload bytes plus the magic header
// available for the canonical path built by FilePath.
//
// Unless force is set, an existing file at path is reused when both its
// length and its magic header match, and OutcomeMatch is returned with the
// file opened read-only and positioned right after the magic. In every other
// case a temporary sibling of path is created and extended to exactly
// size+MagicSize bytes before any payload is written, and OutcomeMismatch or
// OutcomeSizeMismatch is returned. The file at path is never truncated or
// written, so handles that have it mapped keep seeing a stable payload.
//
// Prepare never writes the magic or the payload itself: the caller writes the
// magic only once the payload is complete and then moves the temporary file
// onto path with Install. On OutcomeFail the returned file is nil.
func Prepare(path string, size uint64, force bool) (Outcome, *os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return OutcomeFail, nil, fmt.Errorf("creating dagash directory %s: %w", dir, err)
	}
	total := int64(size) + MagicSize

	outcome := OutcomeMismatch
	if !force {
		f, err := os.Open(path)
		switch {
		case err == nil:
			matched, err := checkFile(f, total)
			if err != nil {
				f.Close()
				return OutcomeFail, nil, fmt.Errorf("checking %s: %w", path, err)
			}
			if matched {
				return OutcomeMatch, f, nil
			}
			f.Close()
			outcome = OutcomeSizeMismatch
		case !errors.Is(err, os.ErrNotExist):
			return OutcomeFail, nil, fmt.Errorf("opening %s: %w", path, err)
		}
	}

	// The stale file stays in place until Install, so the new one needs
	// its full size on top of it.
	if err := ensureSpace(dir, total); err != nil {
		return OutcomeFail, nil, err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return OutcomeFail, nil, fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	if err := f.Chmod(0644); err != nil {
		discard(f)
		return OutcomeFail, nil, fmt.Errorf("setting mode of %s: %w", f.Name(), err)
	}
	if err := f.Truncate(total); err != nil {
		discard(f)
		return OutcomeFail, nil, fmt.Errorf("extending %s to %d bytes: %w", f.Name(), total, err)
	}
	if err := f.Sync(); err != nil {
		discard(f)
		return OutcomeFail, nil, fmt.Errorf("flushing %s: %w", f.Name(), err)
	}
	return outcome, f, nil
}

// Install atomically moves a file returned by Prepare onto its canonical
// path. Readers that still map a previous file at path are not affected.
func Install(f *os.File, path string) error {
	if f.Name() == path {
		return nil
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("installing %s: %w", path, err)
	}
	return nil
}

// discard closes and removes a temporary file that will not be installed.
func discard(f *os.File) {
	f.Close()
	os.Remove(f.Name())
}

// checkFile reports whether f is total bytes long and starts with Magic. On
// a match f is left after the magic.
func checkFile(f *os.File, total int64) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() != total {
		return false, nil
	}
	var magic [MagicSize]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		// Unreadable header is treated as stale content.
		return false, nil
	}
	return binary.LittleEndian.Uint64(magic[:]) == Magic, nil
}

// ensureSpace fails when the filesystem holding dir cannot take need more
// bytes. Filesystems that do not report usage are given the benefit of the
// doubt.
func ensureSpace(dir string, need int64) error {
	if need <= 0 {
		return nil
	}
	usage, err := disk.Usage(dir)
	if err != nil {
		return nil
	}
	if usage.Free < uint64(need) {
		return fmt.Errorf("%w: %s needs %d bytes, %d free", ErrInsufficientSpace, dir, need, usage.Free)
	}
	return nil
}

// putMagic writes the magic header into the first MagicSize bytes of buf.
func putMagic(buf []byte) {
	binary.LittleEndian.PutUint64(buf, Magic)
}

// hasMagic reports whether buf starts with the magic header.
func hasMagic(buf []byte) bool {
	return len(buf) >= MagicSize && binary.LittleEndian.Uint64(buf) == Magic
}
