package api

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"

	"smart-board/internal/worker/config"
	"smart-board/internal/worker/ingest"
	"smart-board/internal/worker/market"
	"smart-board/internal/worker/model"
	"smart-board/internal/worker/refresh"
	"smart-board/internal/worker/registry"
	"smart-board/internal/worker/snapcache"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Server 对外 HTTP 接口
//
// POST /api/v1/refresh  触发刷新，force 跳过新鲜度判断，阻塞到构建结束
// GET  /api/v1/snapshot 读当前最优快照，附带来源层级与新鲜度
// GET  /api/v1/wallets/{address} 单钱包活动详情
// POST /api/v1/ingest   推送交易载荷，直接入事件存储
type Server struct {
	cfg    config.APIConfig
	tl     *zap.Logger
	cache  *snapcache.Cache
	sched  *refresh.Scheduler
	reg    *registry.Registry
	store  *ingest.Store
	market *market.Client
	server *http.Server
}

func NewServer(cfg config.APIConfig, tl *zap.Logger, cache *snapcache.Cache,
	sched *refresh.Scheduler, reg *registry.Registry, store *ingest.Store, mkt *market.Client) *Server {
	s := &Server{
		cfg:    cfg,
		tl:     tl,
		cache:  cache,
		sched:  sched,
		reg:    reg,
		store:  store,
		market: mkt,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/v1/wallets/{address}", s.handleWallet)
	mux.HandleFunc("POST /api/v1/ingest", s.handleIngest)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run() {
	go func() {
		s.tl.Info("api server listening", zap.String("addr", s.cfg.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.tl.Error("api server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

type refreshRequest struct {
	Force bool     `json:"force"`
	Scope []string `json:"scope"`
}

// handleRefresh 显式触发的刷新阻塞到构建完成或超时
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.Body != nil {
		_ = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	refreshed, err := s.sched.Refresh(ctx, req.Scope, req.Force)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"refreshed": false,
			"error":     err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"refreshed": refreshed})
}

type snapshotResponse struct {
	Meta     snapcache.Meta  `json:"meta"`
	Snapshot *model.Snapshot `json:"snapshot"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, meta := s.cache.Read(r.Context())
	if snap == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotResponse{Meta: meta, Snapshot: snap})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !s.reg.Contains(address) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "wallet not tracked"})
		return
	}
	snap, meta := s.cache.Read(r.Context())
	activity := snap.Activity(address)
	if activity == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data yet"})
		return
	}

	// 快照里已有的元数据直接带上，缺的 mint 限量补查一次，查不到就缺着
	tokenMeta := make(map[string]*model.TokenMeta)
	for mint := range activity.Positions {
		if tm, ok := snap.TokenMeta[mint]; ok {
			tokenMeta[mint] = tm
		}
	}
	for _, buy := range activity.RecentBuys {
		if tm, ok := snap.TokenMeta[buy.Mint]; ok {
			tokenMeta[buy.Mint] = tm
		}
	}
	if missing := missingWalletMints(snap, activity, walletMetaBatchCap); len(missing) > 0 && s.market != nil {
		for mint, fetched := range s.market.GetTokenMeta(r.Context(), missing) {
			f := fetched
			tokenMeta[mint] = &f
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"meta":       meta,
		"activity":   activity,
		"tags":       s.reg.Tags(address),
		"token_meta": tokenMeta,
	})
}

// walletMetaBatchCap 单次详情请求最多补查的 mint 数
const walletMetaBatchCap = 10

// missingWalletMints 收集该钱包触达、但快照元数据里缺失的 mint，去重定序后截断
func missingWalletMints(snap *model.Snapshot, a *model.WalletActivity, limit int) []string {
	seen := make(map[string]struct{})
	var missing []string
	add := func(mint string) {
		if _, ok := seen[mint]; ok {
			return
		}
		seen[mint] = struct{}{}
		if _, ok := snap.TokenMeta[mint]; ok {
			return
		}
		missing = append(missing, mint)
	}
	for mint := range a.Positions {
		add(mint)
	}
	for _, buy := range a.RecentBuys {
		add(buy.Mint)
	}
	sort.Strings(missing)
	if len(missing) > limit {
		missing = missing[:limit]
	}
	return missing
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	events := ingest.ParsePayload(body, s.reg.Contains)
	stored, total := s.store.Append(r.Context(), events)
	s.writeJSON(w, http.StatusOK, map[string]int{
		"parsed": len(events),
		"stored": stored,
		"total":  total,
	})
}
