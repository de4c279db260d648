// Package rpc serves work packages to remote miners over HTTP and checks
// the seals they submit.
package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chronodrachma/dagpow/pkg/core/consensus"
	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/core/types"
	"github.com/chronodrachma/dagpow/pkg/miner"
)

// hashrateTTL is how long a submitted hashrate counts towards the total.
const hashrateTTL = 10 * time.Second

// Verifier checks a seal against a difficulty. *engine.Engine implements it.
type Verifier interface {
	Verify(seal *types.Seal, difficulty uint64) error
}

type Server struct {
	verifier Verifier
	logger   *logrus.Entry

	mu      sync.Mutex
	work    *miner.Work
	rates   map[string]rate
	found   chan *types.Seal
	httpSrv *http.Server
}

type rate struct {
	hashes float64
	seen   time.Time
}

func NewServer(verifier Verifier, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		verifier: verifier,
		logger:   logger.WithField("module", "rpc"),
		rates:    make(map[string]rate),
		found:    make(chan *types.Seal, 1),
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/work", s.handleWork)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/hashrate", s.handleHashrate)

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		work := s.work
		s.mu.Unlock()
		if work == nil {
			fmt.Fprintf(w, "dagpow sealer idle. Hashrate: %.0f H/s", s.Hashrate())
			return
		}
		fmt.Fprintf(w, "dagpow sealer working on block %d (epoch %d). Hashrate: %.0f H/s",
			work.Number, dagash.Epoch(work.Number), s.Hashrate())
	})
	return mux
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	srv := s.httpSrv
	s.mu.Unlock()

	s.logger.WithField("addr", ln.Addr()).Info("Serving work")
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop closes the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

// SetWork replaces the package handed to miners.
func (s *Server) SetWork(work miner.Work) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.work = &work
}

// Found delivers the seals remote miners submit that verify.
func (s *Server) Found() <-chan *types.Seal { return s.found }

// Hashrate sums the rates miners reported within the last hashrateTTL.
func (s *Server) Hashrate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total float64
	for id, r := range s.rates {
		if time.Since(r.seen) > hashrateTTL {
			delete(s.rates, id)
			continue
		}
		total += r.hashes
	}
	return total
}

// WorkResponse is what GET /work returns.
type WorkResponse struct {
	Number     uint64 `json:"number"`
	HeaderHash string `json:"header"`
	SeedHash   string `json:"seed"`
	Target     string `json:"target"`
	Difficulty uint64 `json:"difficulty"`
}

// GET /work
func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	work := s.work
	s.mu.Unlock()

	if work == nil {
		http.Error(w, "no work available yet", http.StatusServiceUnavailable)
		return
	}
	target := consensus.TargetForDifficulty(work.Difficulty)
	var targetBytes types.Hash
	target.FillBytes(targetBytes[:])

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WorkResponse{
		Number:     work.Number,
		HeaderHash: work.HeaderHash.Hex(),
		SeedHash:   dagash.SeedHash(work.Number).Hex(),
		Target:     targetBytes.Hex(),
		Difficulty: work.Difficulty,
	})
}

// POST /submit
// Body: JSON object with the nonce found for the current header
type SubmitRequest struct {
	Nonce      string `json:"nonce"` // decimal or 0x-prefixed hex
	HeaderHash string `json:"header"`
	MixDigest  string `json:"mix"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	nonce, err := strconv.ParseUint(req.Nonce, 0, 64)
	if err != nil {
		http.Error(w, "invalid nonce", http.StatusBadRequest)
		return
	}
	header, err := types.HashFromHex(req.HeaderHash)
	if err != nil {
		http.Error(w, "invalid header hash", http.StatusBadRequest)
		return
	}
	mix, err := types.HashFromHex(req.MixDigest)
	if err != nil {
		http.Error(w, "invalid mix digest", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	work := s.work
	s.mu.Unlock()
	if work == nil || work.HeaderHash != header {
		http.Error(w, "stale or unknown work", http.StatusConflict)
		return
	}

	seal := &types.Seal{Number: work.Number, HeaderHash: header, Nonce: nonce, MixDigest: mix}
	if err := s.verifier.Verify(seal, work.Difficulty); err != nil {
		s.logger.WithError(err).WithField("nonce", nonce).Warn("Rejected submitted seal")
		http.Error(w, fmt.Sprintf("rejected: %v", err), http.StatusBadRequest)
		return
	}

	select {
	case s.found <- seal:
	default:
		s.logger.WithField("nonce", nonce).Debug("Dropped seal, previous one not consumed")
	}
	fmt.Fprint(w, `{"status": "ok"}`)
}

// POST /hashrate
type HashrateRequest struct {
	ID   string  `json:"id"`
	Rate float64 `json:"rate"`
}

func (s *Server) handleHashrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}
	var req HashrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.rates[req.ID] = rate{hashes: req.Rate, seen: time.Now()}
	s.mu.Unlock()

	fmt.Fprint(w, `{"status": "ok"}`)
}
