// Package httpapi serves the end-user and admin HTTP API on top of the ledger and the
// account lifecycle services.
package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	actorContextKey  = "actor"
)

// Config carries the HTTP settings that shape request handling.
type Config struct {
	AllowedOrigins []string
	UnlockCost     ledger.Credits
}

// Handler holds the services behind every route.
type Handler struct {
	ledgerService    *ledger.Service
	lifecycleService *lifecycle.Service
	logger           *zap.Logger
	unlockCost       ledger.Credits
}

// NewHandler validates dependencies and builds a Handler.
func NewHandler(ledgerService *ledger.Service, lifecycleService *lifecycle.Service, logger *zap.Logger, cfg Config) (*Handler, error) {
	if ledgerService == nil || lifecycleService == nil {
		return nil, fmt.Errorf("%w: services are required", ledger.ErrInvalidServiceConfig)
	}
	if cfg.UnlockCost <= 0 {
		return nil, fmt.Errorf("%w: unlock cost must be positive", ledger.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ledgerService:    ledgerService,
		lifecycleService: lifecycleService,
		logger:           logger,
		unlockCost:       cfg.UnlockCost,
	}, nil
}

// NewRouter wires middleware and routes.
func NewRouter(cfg Config, handler *Handler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey), requireActor())

	api.POST("/session", handler.handleSession)
	api.GET("/credits/balance", handler.handleBalance)
	api.GET("/credits/transactions", handler.handleTransactions)
	api.GET("/profiles/grants", handler.handleGrants)
	api.GET("/profiles/:applicationID/access", handler.handleAccess)
	api.POST("/profiles/:applicationID/unlock", handler.handleUnlock)
	api.GET("/account/status", handler.handleAccountStatus)
	api.POST("/account/deactivation", handler.handleRequestDeactivation)
	api.POST("/account/reactivation", handler.handleRequestReactivation)

	admin := api.Group("/admin")
	admin.Use(requireAdmin())
	admin.POST("/users/:userID/credits", handler.handleAdminAdjustment)
	admin.GET("/users/:userID/reconcile", handler.handleReconcile)
	admin.POST("/users/:userID/deactivation/cancel", handler.handleCancelDeactivation)
	admin.POST("/deactivations/sweep", handler.handleSweep)
	admin.GET("/reactivation-requests", handler.handleListReactivationRequests)
	admin.POST("/reactivation-requests/:requestID/approve", handler.handleApproveReactivation)
	admin.POST("/reactivation-requests/:requestID/reject", handler.handleRejectReactivation)

	return router
}
