package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/httpapi"
)

// Spammer fires concurrent seckill requests at one voucher and counts the
// responses by status code.
type Spammer struct {
	client    *http.Client
	target    string
	logger    *zap.Logger
	isRunning atomic.Bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	byStatus map[int]int64
	failed   int64
	total    atomic.Int64
}

type SpamRequest struct {
	VoucherID   int64 `json:"voucherId"`
	Users       int   `json:"users"`
	Concurrency int   `json:"concurrency"`
}

type SpamStats struct {
	IsRunning bool             `json:"is_running"`
	Total     int64            `json:"total"`
	ByStatus  map[string]int64 `json:"by_status"`
	Failed    int64            `json:"failed"`
}

func NewSpammer(target string, logger *zap.Logger) *Spammer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Spammer{
		client:   &http.Client{Timeout: 5 * time.Second},
		target:   target,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		byStatus: make(map[int]int64),
	}
}

// StartSpam sends one request per user id in [1, users], shuffled, from
// concurrency workers.
func (s *Spammer) StartSpam(req SpamRequest) bool {
	if !s.isRunning.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.byStatus = make(map[int]int64)
	s.failed = 0
	s.mu.Unlock()
	s.total.Store(0)

	users := make(chan int64, req.Concurrency)
	s.logger.Info("Starting spam",
		zap.Int64("voucher_id", req.VoucherID),
		zap.Int("users", req.Users),
		zap.Int("concurrency", req.Concurrency),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(users)
		for _, u := range rand.Perm(req.Users) {
			select {
			case users <- int64(u + 1):
			case <-s.ctx.Done():
				return
			}
		}
	}()

	var workers sync.WaitGroup
	for i := 0; i < req.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for u := range users {
				s.fire(req.VoucherID, u)
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.isRunning.Store(false)
		workers.Wait()
		st := s.GetStats()
		s.logger.Info("Spam completed", zap.Int64("total", st.Total), zap.Any("by_status", st.ByStatus))
	}()
	return true
}

func (s *Spammer) fire(voucherID, userID int64) {
	url := fmt.Sprintf("%s/voucher-order/seckill/%d", s.target, voucherID)
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, url, nil)
	if err != nil {
		return
	}
	req.Header.Set(httpapi.UserHeader, strconv.FormatInt(userID, 10))

	s.total.Add(1)
	resp, err := s.client.Do(req)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
		return
	}
	_ = resp.Body.Close()
	s.byStatus[resp.StatusCode]++
}

func (s *Spammer) StopSpam() {
	if s.isRunning.Load() {
		s.cancel()
		s.wg.Wait()
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
}

func (s *Spammer) GetStats() SpamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	by := make(map[string]int64, len(s.byStatus))
	for code, n := range s.byStatus {
		by[strconv.Itoa(code)] = n
	}
	return SpamStats{
		IsRunning: s.isRunning.Load(),
		Total:     s.total.Load(),
		ByStatus:  by,
		Failed:    s.failed,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	target := "http://app:8081"
	if env := os.Getenv("SPAM_TARGET"); env != "" {
		target = env
	}
	spammer := NewSpammer(target, logger)
	defer spammer.StopSpam()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /start", func(w http.ResponseWriter, r *http.Request) {
		var req SpamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.VoucherID <= 0 {
			http.Error(w, "voucherId is required", http.StatusBadRequest)
			return
		}
		if req.Users <= 0 {
			req.Users = 1000
		}
		if req.Concurrency <= 0 {
			req.Concurrency = 50
		}

		if !spammer.StartSpam(req) {
			http.Error(w, "already running", http.StatusConflict)
			return
		}
		writeJSON(w, map[string]any{
			"status":      "started",
			"voucherId":   req.VoucherID,
			"users":       req.Users,
			"concurrency": req.Concurrency,
		})
	})

	mux.HandleFunc("POST /stop", func(w http.ResponseWriter, r *http.Request) {
		spammer.StopSpam()
		writeJSON(w, map[string]any{
			"status": "stopped",
			"stats":  spammer.GetStats(),
		})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, spammer.GetStats())
	})

	port := ":8082"
	if envPort := os.Getenv("SPAMMER_PORT"); envPort != "" {
		port = ":" + envPort
	}

	logger.Info("Spammer server started", zap.String("addr", port), zap.String("target", target))
	if err := http.ListenAndServe(port, mux); err != nil {
		logger.Fatal("Spammer server stopped", zap.Error(err))
	}
}
