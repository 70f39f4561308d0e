package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/driveshare/driveshare/internal/archive"
	"github.com/driveshare/driveshare/internal/credit"
	"github.com/driveshare/driveshare/internal/identity"
	"github.com/driveshare/driveshare/internal/insurance"
	"github.com/driveshare/driveshare/internal/registry"
	"github.com/driveshare/driveshare/internal/rental"
	"github.com/driveshare/driveshare/pkg/circuit"
)

// Gateway is the HTTP surface over the marketplace core. It owns no
// domain state: every request is authenticated, translated and handed
// to the engine or one of the ledgers.
type Gateway struct {
	router *gin.Engine
	logger *zap.Logger

	engine   *rental.Engine
	vehicles *registry.Registry
	policies *insurance.Ledger
	credits  *credit.Ledger

	accounts *identity.Service
	tokens   *identity.TokenManager

	store    *archive.Store
	breakers *circuit.Group
	limiter  *RateLimiter
	stream   *Stream
}

// Config holds gateway tuning.
type Config struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Deps are the collaborators the gateway fronts. accounts, store,
// limiter and stream may be nil; the corresponding routes degrade
// gracefully.
type Deps struct {
	Engine   *rental.Engine
	Vehicles *registry.Registry
	Policies *insurance.Ledger
	Credits  *credit.Ledger
	Accounts *identity.Service
	Tokens   *identity.TokenManager
	Store    *archive.Store
	Limiter  *RateLimiter
	Stream   *Stream
	Logger   *zap.Logger
}

// New builds the gateway and its routes.
func New(cfg Config, deps Deps) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		router:   gin.New(),
		logger:   logger,
		engine:   deps.Engine,
		vehicles: deps.Vehicles,
		policies: deps.Policies,
		credits:  deps.Credits,
		accounts: deps.Accounts,
		tokens:   deps.Tokens,
		store:    deps.Store,
		limiter:  deps.Limiter,
		stream:   deps.Stream,
		breakers: circuit.NewGroup(circuit.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			HalfOpenMax: 3,
		}),
	}

	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.Use(gin.Recovery())
	g.router.Use(g.requestLogger())
	if g.limiter != nil {
		g.router.Use(g.rateLimitMiddleware())
	}

	g.router.GET("/health", g.healthCheck)

	v1 := g.router.Group("/api/v1")
	{
		if g.accounts != nil {
			v1.POST("/auth/register", g.register)
			v1.POST("/auth/login", g.login)
		}

		// Vehicles
		v1.GET("/vehicles", g.listVehicles)
		v1.GET("/vehicles/:id", g.getVehicle)
		v1.GET("/vehicles/:id/availability", g.getAvailability)
		v1.GET("/vehicles/:id/policy", g.getVehiclePolicy)
		v1.POST("/vehicles", g.authMiddleware(), g.registerVehicle)
		v1.PATCH("/vehicles/:id", g.authMiddleware(), g.updateVehicle)
		v1.POST("/vehicles/:id/transfer", g.authMiddleware(), g.transferVehicle)

		// Insurance
		v1.GET("/policies/:id", g.getPolicy)
		v1.POST("/policies", g.authMiddleware(), g.purchasePolicy)
		v1.POST("/policies/:id/claim", g.authMiddleware(), g.claimPolicy)
		v1.POST("/policies/:id/cancel", g.authMiddleware(), g.cancelPolicy)

		// Rentals
		v1.GET("/rentals/:id", g.authMiddleware(), g.getRental)
		v1.GET("/rentals", g.authMiddleware(), g.listRentals)
		v1.POST("/rentals", g.authMiddleware(), g.initiateRental)
		v1.POST("/rentals/:id/complete", g.authMiddleware(), g.completeRental)
		v1.POST("/rentals/:id/dispute", g.authMiddleware(), g.raiseDispute)
		v1.POST("/rentals/:id/resolve", g.authMiddleware(), g.requireAdmin(), g.resolveDispute)

		// Credits
		v1.GET("/credits/balance", g.authMiddleware(), g.getBalance)
		v1.POST("/credits/approve", g.authMiddleware(), g.approveCredits)
		v1.POST("/credits/transfer", g.authMiddleware(), g.transferCredits)
		v1.POST("/credits/mint", g.authMiddleware(), g.requireAdmin(), g.mintCredits)

		// Archive
		if g.store != nil {
			v1.GET("/vehicles/:id/history", g.vehicleHistory)
			v1.GET("/market/summary", g.marketSummary)
		}

		// Observation stream
		if g.stream != nil {
			v1.GET("/ws", g.stream.Handle)
		}
	}
}

// Handler exposes the router for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start serves until the listener fails.
func (g *Gateway) Start(addr string) error {
	return g.router.Run(addr)
}

func (g *Gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
