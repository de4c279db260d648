package dagash

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Config controls where handles keep their data.
type Config struct {
	// CacheDir persists verification caches. Empty keeps them on the heap.
	CacheDir string
	// DatasetDir persists mining datasets. Empty keeps them on the heap.
	DatasetDir string
	// Test shrinks caches and datasets to a few kilobytes.
	Test bool
	// Generator builds datasets; nil means GenerateDataset.
	Generator Generator
	// Logger receives progress and diagnostics; nil discards them.
	Logger *logrus.Entry
}

func (c Config) logger() *logrus.Entry {
	if c.Logger != nil {
		return c.Logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return logrus.NewEntry(discard)
}

func (c Config) generator() Generator {
	if c.Generator != nil {
		return c.Generator
	}
	return GenerateDataset
}
