package engine

import (
	"errors"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/core/registry"
)

// record notes a file backed cache or dataset in the registry and prunes
// the files of epochs that fell out of the on-disk window.
func (e *Engine) record(kind dagash.Kind, light *dagash.Light, outcome dagash.Outcome) {
	keep, size := e.config.CachesOnDisk, light.CacheSize()
	if kind == dagash.KindDataset {
		keep, size = e.config.DatasetsOnDisk, light.DatasetSize()
	}
	path := light.FilePath(kind)
	if path == "" {
		return
	}
	logger := e.logger.WithFields(logrus.Fields{"kind": kind, "epoch": light.Epoch()})

	err := e.registry.SaveArtifact(&registry.Artifact{
		Kind:      kind,
		Epoch:     light.Epoch(),
		Seed:      light.SeedHash(),
		Path:      path,
		Size:      size,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to record dagash file")
	}
	logger.WithField("outcome", outcome).Debug("Recorded dagash file")
	e.prune(kind, light.Epoch(), keep)
}

// prune deletes files more than keep epochs older than epoch. keep <= 0
// disables pruning.
func (e *Engine) prune(kind dagash.Kind, epoch uint64, keep int) {
	if keep <= 0 {
		return
	}
	artifacts, err := e.registry.ListArtifacts(kind)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to list dagash files")
		return
	}
	for _, a := range artifacts {
		if a.Epoch+uint64(keep) > epoch {
			break
		}
		logger := e.logger.WithFields(logrus.Fields{
			"kind":  kind,
			"epoch": a.Epoch,
			"path":  a.Path,
			"size":  humanize.IBytes(a.Size),
		})
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WithError(err).Warn("Failed to remove stale dagash file")
			continue
		}
		if err := e.registry.DeleteArtifact(kind, a.Epoch); err != nil {
			logger.WithError(err).Warn("Failed to forget stale dagash file")
			continue
		}
		logger.Debug("Removed stale dagash file")
	}
}

// Artifacts lists the files the engine has written for kind, oldest epoch
// first.
func (e *Engine) Artifacts(kind dagash.Kind) ([]*registry.Artifact, error) {
	if e.registry == nil {
		return nil, nil
	}
	return e.registry.ListArtifacts(kind)
}
