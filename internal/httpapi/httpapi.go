package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/TemirB/dianping-seckill/internal/application/service"
	"github.com/TemirB/dianping-seckill/internal/cache"
	"github.com/TemirB/dianping-seckill/internal/domain"
	"github.com/TemirB/dianping-seckill/internal/observability"
	"github.com/TemirB/dianping-seckill/internal/seckill"
)

//go:generate mockgen -source=httpapi.go -destination=httpapi_mock_test.go -package=httpapi

// UserHeader carries the caller's user id. Authentication happens in front
// of this service.
const UserHeader = "X-User-ID"

type ShopService interface {
	QueryByIDWithStats(ctx context.Context, id int64) (*domain.Shop, service.LookupStats, error)
	Update(ctx context.Context, shop *domain.Shop) error
	ListTypes(ctx context.Context) ([]domain.ShopType, error)
}

type OrderService interface {
	Submit(ctx context.Context, voucherID, userID int64) (int64, error)
	PublishVoucher(ctx context.Context, v domain.SeckillVoucher) error
}

type Server struct {
	shops   ShopService
	orders  OrderService
	router  chi.Router
	logger  *zap.Logger
	metrics observability.Metrics
}

// result is the response envelope shared by every endpoint.
type result struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func New(shops ShopService, orders OrderService, logger *zap.Logger, metrics observability.Metrics) *Server {
	s := &Server{
		shops:   shops,
		orders:  orders,
		router:  chi.NewRouter(),
		logger:  logger,
		metrics: metrics,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(ObserveRequests(s.metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, result{Success: true})
	})
	r.Route("/shop", func(r chi.Router) {
		r.Get("/{id}", s.getShop)
		r.Put("/", s.updateShop)
	})
	r.Get("/shop-type/list", s.listShopTypes)
	r.Post("/voucher/seckill", s.publishVoucher)
	r.Post("/voucher-order/seckill/{id}", s.seckillVoucher)
}

func (s *Server) getShop(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "shop id must be a positive integer")
		return
	}

	shop, st, err := s.shops.QueryByIDWithStats(r.Context(), id)
	observability.AppendServerTiming(w, observability.TimingLookup, st.Ms, st.Mode)
	observability.SetDurationHeader(w, "X-Lookup-Time", st.Ms)
	if err != nil {
		status, msg := s.classify(err)
		if status == http.StatusNotFound {
			msg = "shop does not exist"
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Data: shop})
}

func (s *Server) updateShop(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var shop domain.Shop
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&shop); err != nil {
		s.logger.Warn("Error while decoding JSON", zap.Error(err))
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	if err := s.shops.Update(r.Context(), &shop); err != nil {
		status, msg := s.classify(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true})
}

func (s *Server) listShopTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.shops.ListTypes(r.Context())
	if err != nil {
		status, msg := s.classify(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Data: types})
}

func (s *Server) publishVoucher(w http.ResponseWriter, r *http.Request) {
	var v domain.SeckillVoucher
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&v); err != nil {
		s.logger.Warn("Error while decoding JSON", zap.Error(err))
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	if err := s.orders.PublishVoucher(r.Context(), v); err != nil {
		status, msg := s.classify(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, result{Success: true, Data: v.VoucherID})
}

func (s *Server) seckillVoucher(w http.ResponseWriter, r *http.Request) {
	voucherID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "voucher id must be a positive integer")
		return
	}
	userID, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusUnauthorized, "user is not logged in")
		return
	}

	start := time.Now()
	orderID, err := s.orders.Submit(r.Context(), voucherID, userID)
	observability.AppendServerTiming(w, observability.TimingAdmit, observability.MsSince(start), "")
	if err != nil {
		status, msg := s.classify(err)
		writeError(w, status, msg)
		return
	}
	// ids exceed 2^53, so they go out as strings
	writeJSON(w, http.StatusOK, result{Success: true, Data: strconv.FormatInt(orderID, 10)})
}

// classify maps service errors to a status and a message safe to show.
func (s *Server) classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrInvalidShop),
		errors.Is(err, seckill.ErrInvalidVoucher):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, seckill.ErrInsufficientStock):
		return http.StatusConflict, "insufficient stock"
	case errors.Is(err, seckill.ErrDuplicateOrder):
		return http.StatusConflict, "one order per user"
	case errors.Is(err, seckill.ErrQueueFull),
		errors.Is(err, seckill.ErrClosed),
		errors.Is(err, cache.ErrBusy),
		service.IsUnavailable(err):
		return http.StatusServiceUnavailable, "service busy, try again"
	}
	s.logger.Error("Request failed", zap.Error(err))
	return http.StatusInternalServerError, "Service error"
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, result{ErrorMsg: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler { return s.router }
