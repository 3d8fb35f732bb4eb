package http

import (
	"context"
	"net/http"
	"time"

	"boost/internal/config"
	"boost/internal/domain"
	"boost/internal/infra/assets"
	"boost/internal/infra/db"
	"boost/internal/infra/events"
	"boost/internal/infra/merkle"
	"boost/internal/infra/policyopa"
	"boost/internal/infra/ratelimit"
	"boost/internal/usecase"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine
	log   *logrus.Entry

	platform *assets.Platform
	factory  *usecase.Factory
	claims   *usecase.SubmitClaim
	sink     *events.MemorySink

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
	rateLimitPerUser  bool

	initErr error
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:   cfg,
		store: store,
		r:     r,
		log:   logrus.WithField("component", "http"),
	}
	s.initDeps()
	s.routes()
	return s
}

// ServerDeps lets tests and alternative wiring supply pre-built
// collaborators, typically with a fake clock.
type ServerDeps struct {
	Platform    *assets.Platform
	Factory     *usecase.Factory
	Claims      *usecase.SubmitClaim
	Sink        *events.MemorySink
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		r:        r,
		log:      logrus.WithField("component", "http"),
		platform: deps.Platform,
		factory:  deps.Factory,
		claims:   deps.Claims,
		sink:     deps.Sink,
	}
	if s.claims == nil && s.factory != nil {
		s.claims = &usecase.SubmitClaim{Vaults: s.factory}
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	ctx := context.Background()

	s.platform = assets.NewPlatform()
	s.sink = events.NewMemorySink(4096)

	var sink usecase.EventSink = s.sink
	if s.cfg.NATSURL != "" {
		natsSink, err := events.NewNATSSink(s.cfg.NATSURL, s.cfg.NATSSubjectPrefix)
		if err != nil {
			s.initErr = err
			return
		}
		sink = events.Fanout{s.sink, natsSink}
	}

	stateStore := db.NewStateStore(s.store)

	var policy usecase.PolicyEngine
	if s.cfg.PolicyBundlePath != "" {
		engine, err := policyopa.NewEngine(ctx, policyopa.Options{
			BundlePath: s.cfg.PolicyBundlePath,
			BundleID:   s.cfg.PolicyBundleID,
		})
		if err != nil {
			s.initErr = err
			return
		}
		policy = engine
	}

	platform := s.platform
	s.factory = usecase.NewFactory(usecase.FactoryConfig{
		ChainID:  s.cfg.ChainID,
		Verifier: &merkle.Service{},
		Events:   sink,
		Store:    stateStore,
		AdapterFor: func(asset common.Address) usecase.AssetAdapter {
			return platform.AdapterFor(asset, domain.FundingSpender)
		},
		RegisterReceiver: func(id common.Address, receiver usecase.NativeReceiver) {
			platform.Native().RegisterReceiver(id, receiver)
		},
	})
	s.claims = &usecase.SubmitClaim{
		Vaults: s.factory,
		Policy: policy,
	}

	if err := s.rehydrate(ctx, stateStore, sink); err != nil {
		s.initErr = err
		return
	}

	s.initRateLimit(nil)
}

// rehydrate reloads persisted vaults into the registry and re-credits their
// balances onto the in-process asset platform.
func (s *Server) rehydrate(ctx context.Context, store *db.StateStore, sink usecase.EventSink) error {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		info := record.Info
		s.platform.Credit(info.Asset, info.ID, info.Balance)
		vault := usecase.NewVault(usecase.VaultConfig{
			ID:       info.ID,
			Asset:    info.Asset,
			Owner:    info.Owner,
			Operator: info.Operator,
			Adapter:  s.platform.AdapterFor(info.Asset, domain.FundingSpender),
			Verifier: &merkle.Service{},
			Events:   sink,
			Store:    store,
		})
		vault.RestoreState(info.Root, info.Window, record.Claims)
		if err := s.factory.Attach(vault); err != nil {
			return err
		}
		s.log.WithField("vault", info.ID.Hex()).Info("vault rehydrated")
	}
	return nil
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisLimiterConfig{
				Addr:     s.cfg.RedisAddr,
				Password: s.cfg.RedisPassword,
				DB:       s.cfg.RedisDB,
			}); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitPerUser = s.cfg.RateLimitPerClaimant
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})
	s.r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.r.Group("/v1")
	{
		v1.POST("/vaults", s.handleCreateVault)
		v1.GET("/vaults/:id", s.handleGetVault)
		v1.POST("/vaults/:id/window", s.handleSetWindow)
		v1.POST("/vaults/:id/root", s.handleSetRoot)
		v1.POST("/vaults/:id/claims", s.handleClaim)
		v1.GET("/vaults/:id/claims/:account", s.handleGetClaimed)
		v1.POST("/vaults/:id/withdraw", s.handleWithdraw)
		v1.GET("/vaults/:id/events", s.handleListEvents)

		v1.GET("/registry/:id", s.handleRegistry)

		v1.POST("/assets/:asset/mint", s.handleMint)
		v1.POST("/assets/:asset/approve", s.handleApprove)
		v1.GET("/assets/:asset/balances/:account", s.handleBalance)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "unknown route")
	})
}

func (s *Server) Run() error {
	if s.initErr != nil {
		return s.initErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}
