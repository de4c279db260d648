package dagash

import (
	"crypto/subtle"
	"encoding/binary"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/chronodrachma/dagpow/pkg/core/types"
)

// logInterval throttles progress logs of long running generations.
const logInterval = 3 * time.Second

// generateCache creates a verification cache of len(dest) bytes. It first
// chains hashes of the seed into the buffer, then runs CacheRounds passes of
// the memory-hardening step: every item is rehashed from its predecessor
// XORed with a pseudo-randomly chosen other item.
//
// Items are stored as little-endian words regardless of host order.
func generateCache(dest []byte, epoch uint64, seed types.Hash, logger *logrus.Entry) {
	logger = logger.WithField("epoch", epoch)

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		entry := logger.WithFields(logrus.Fields{
			"size":    humanize.IBytes(uint64(len(dest))),
			"elapsed": elapsed,
		})
		if elapsed > logInterval {
			entry.Info("Generated dagash verification cache")
		} else {
			entry.Debug("Generated dagash verification cache")
		}
	}()

	size := uint64(len(dest))
	rows := size / HashBytes
	keccak512 := newKeccak512()

	// One sequential pass of initial hashes plus CacheRounds mixing passes.
	total := rows * (CacheRounds + 1)
	var done uint64
	last := start
	report := func() {
		done++
		if time.Since(last) >= logInterval {
			logger.WithFields(logrus.Fields{
				"percentage": done * 100 / total,
				"elapsed":    time.Since(start),
			}).Info("Generating dagash verification cache")
			last = time.Now()
		}
	}

	// Sequentially produce the initial dataset
	keccak512(dest, seed[:])
	report()
	for offset := uint64(HashBytes); offset < size; offset += HashBytes {
		keccak512(dest[offset:], dest[offset-HashBytes:offset])
		report()
	}
	// Use a low-round version of randmemohash
	temp := make([]byte, HashBytes)

	for i := 0; i < CacheRounds; i++ {
		for j := uint64(0); j < rows; j++ {
			var (
				srcOff = ((j - 1 + rows) % rows) * HashBytes
				dstOff = j * HashBytes
				xorOff = (uint64(binary.LittleEndian.Uint32(dest[dstOff:])) % rows) * HashBytes
			)
			subtle.XORBytes(temp, dest[srcOff:srcOff+HashBytes], dest[xorOff:xorOff+HashBytes])
			keccak512(dest[dstOff:], temp)
			report()
		}
	}
}
