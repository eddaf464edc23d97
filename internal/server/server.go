package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/gatehouse/internal/apikey"
	apikeydomain "github.com/smallbiznis/gatehouse/internal/apikey/domain"
	"github.com/smallbiznis/gatehouse/internal/audit"
	auditdomain "github.com/smallbiznis/gatehouse/internal/audit/domain"
	"github.com/smallbiznis/gatehouse/internal/authorization"
	"github.com/smallbiznis/gatehouse/internal/config"
	"github.com/smallbiznis/gatehouse/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	"github.com/smallbiznis/gatehouse/internal/featureflag"
	featureflagdomain "github.com/smallbiznis/gatehouse/internal/featureflag/domain"
	"github.com/smallbiznis/gatehouse/internal/membership"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/observability"
	"github.com/smallbiznis/gatehouse/internal/permission/gate"
	"github.com/smallbiznis/gatehouse/internal/policy"
	policydomain "github.com/smallbiznis/gatehouse/internal/policy/domain"
	"github.com/smallbiznis/gatehouse/internal/snapshot"
	snapshotdomain "github.com/smallbiznis/gatehouse/internal/snapshot/domain"
	"github.com/smallbiznis/gatehouse/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/gatehouse/internal/subscription/domain"
	"github.com/smallbiznis/gatehouse/internal/tenantctx"
	"github.com/smallbiznis/gatehouse/internal/usage"
	usagedomain "github.com/smallbiznis/gatehouse/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	apikey.Module,
	membership.Module,
	subscription.Module,
	entitlement.Module,
	gate.Module,
	snapshot.Module,
	policy.Module,
	featureflag.Module,
	usage.Module,
	tenantctx.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(requestLogger(log))
	r.Use(observability.TracingMiddleware())
	r.Use(metrics.HTTPMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	return r
}

func registerGin(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	return NewEngine(log, metrics)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.Error(lastErr.Err))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *observability.Metrics

	resolver *tenantctx.Resolver
	gates    *gate.Table

	memberships   membershipdomain.Service
	subscriptions subscriptiondomain.Service
	entitlements  entitlementdomain.Service
	snapshots     snapshotdomain.Service
	policies      policydomain.Service
	featureflags  featureflagdomain.Service
	usagesvc      usagedomain.Service
	apikeys       apikeydomain.Service
	auditsvc      auditdomain.Service
	authz         authorization.Service
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	Cfg     config.Config
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *observability.Metrics

	Resolver *tenantctx.Resolver
	Gates    *gate.Table

	Memberships   membershipdomain.Service
	Subscriptions subscriptiondomain.Service
	Entitlements  entitlementdomain.Service
	Snapshots     snapshotdomain.Service
	Policies      policydomain.Service
	FeatureFlags  featureflagdomain.Service
	UsageSvc      usagedomain.Service
	APIKeys       apikeydomain.Service
	AuditSvc      auditdomain.Service
	Authz         authorization.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		metrics:       p.Metrics,
		resolver:      p.Resolver,
		gates:         p.Gates,
		memberships:   p.Memberships,
		subscriptions: p.Subscriptions,
		entitlements:  p.Entitlements,
		snapshots:     p.Snapshots,
		policies:      p.Policies,
		featureflags:  p.FeatureFlags,
		usagesvc:      p.UsageSvc,
		apikeys:       p.APIKeys,
		auditsvc:      p.AuditSvc,
		authz:         p.Authz,
	}

	s.registerAPIRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.AuthRequired(), s.TenantContext())

	api.POST("/decision", s.PostDecision)

	api.GET("/entitlements", s.GetEntitlements)

	api.GET("/feature-flags", s.GetFeatureFlags)
	api.POST("/feature-flags/:key/toggle", s.ToggleFeatureFlag)

	api.GET("/permission-bundles", s.GetPermissionBundles)

	api.GET("/snapshot", s.GetSnapshot)

	api.POST("/usage/consume", s.ConsumeUsage)
	api.GET("/credits/balance", s.GetCreditBalance)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/v1/admin", s.AuthRequired(), s.TenantContext())

	admin.PUT("/roles/:id/grants", s.ReplaceRoleGrants)

	admin.PUT("/entitlement-overrides", s.PutEntitlementOverride)
	admin.DELETE("/entitlement-overrides/:id", s.DeleteEntitlementOverride)

	admin.POST("/snapshots/invalidate", s.InvalidateSnapshots)

	admin.POST("/api-keys", s.CreateAPIKey)
	admin.DELETE("/api-keys/:id", s.RevokeAPIKey)

	admin.POST("/credits/topup", s.TopUpCredits)

	admin.GET("/audit", s.ListAuditEntries)
}
