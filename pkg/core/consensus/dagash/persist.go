package dagash

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// loadOrGenerate returns a mapping of the kind artifact at path. A matching
// file is mapped read-only as is. Otherwise generate fills the payload of a
// freshly prepared temporary file, the magic is written only after the
// payload has been flushed, and the file is then installed at path.
func loadOrGenerate(path string, kind Kind, size uint64, logger *logrus.Entry, generate func(buf []byte) error) (*mapping, Outcome, error) {
	outcome, f, err := Prepare(path, size, false)
	if err != nil {
		return nil, outcome, err
	}
	logger = logger.WithFields(logrus.Fields{
		"path":    path,
		"outcome": outcome,
	})

	if outcome == OutcomeMatch {
		m, err := mapFile(f, false)
		if err != nil {
			f.Close()
			return nil, OutcomeFail, err
		}
		if !hasMagic(m.data) {
			m.close()
			return nil, OutcomeFail, fmt.Errorf("%s: %w", f.Name(), ErrInvalidMagic)
		}
		logger.Debugf("Loaded old dagash %s from disk", kind)
		return m, outcome, nil
	}
	logger.Debugf("Generating new dagash %s on disk", kind)

	m, err := mapFile(f, true)
	if err != nil {
		discard(f)
		return nil, OutcomeFail, err
	}
	abort := func() {
		m.close()
		os.Remove(f.Name())
	}
	if err := generate(m.data[MagicSize:]); err != nil {
		abort()
		return nil, outcome, err
	}
	if err := m.flush(); err != nil {
		abort()
		return nil, OutcomeFail, err
	}
	putMagic(m.data)
	if err := m.flush(); err != nil {
		abort()
		return nil, OutcomeFail, err
	}
	if err := m.seal(); err != nil {
		abort()
		return nil, OutcomeFail, err
	}
	if err := Install(f, path); err != nil {
		abort()
		return nil, OutcomeFail, err
	}
	return m, outcome, nil
}

// timed runs generate and logs how long the dataset took.
func timed(logger *logrus.Entry, size uint64, generate func(buf []byte) error) func(buf []byte) error {
	return func(buf []byte) error {
		start := time.Now()
		if err := generate(buf); err != nil {
			return err
		}
		elapsed := time.Since(start)
		entry := logger.WithFields(logrus.Fields{
			"size":    humanize.IBytes(size),
			"elapsed": elapsed,
		})
		if elapsed > logInterval {
			entry.Info("Generated dagash mining dataset")
		} else {
			entry.Debug("Generated dagash mining dataset")
		}
		return nil
	}
}
