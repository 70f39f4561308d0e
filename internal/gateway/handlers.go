package gateway

import (
	"errors"
	"net/http"
	"strconv"
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

// Request types

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterVehicleRequest struct {
	Category       string    `json:"category" binding:"required"`
	PricePerDay    uint64    `json:"price_per_day" binding:"required"`
	MaintenanceDue time.Time `json:"maintenance_due"`
}

type UpdateVehicleRequest struct {
	PricePerDay  uint64 `json:"price_per_day"`
	Available    bool   `json:"available"`
	HasInsurance bool   `json:"has_insurance"`
}

type TransferVehicleRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

type PurchasePolicyRequest struct {
	VehicleID    uint64 `json:"vehicle_id" binding:"required"`
	Premium      uint64 `json:"premium" binding:"required"`
	Coverage     uint64 `json:"coverage" binding:"required"`
	DurationDays uint64 `json:"duration_days" binding:"required"`
	Payment      uint64 `json:"payment" binding:"required"`
}

type ClaimPolicyRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

type InitiateRentalRequest struct {
	VehicleID uint64 `json:"vehicle_id" binding:"required"`
	Days      uint64 `json:"days" binding:"required"`
}

type ResolveDisputeRequest struct {
	RefundToRenter bool `json:"refund_to_renter"`
}

type ApproveRequest struct {
	Spender string `json:"spender" binding:"required"`
	Amount  uint64 `json:"amount"`
}

type TransferCreditsRequest struct {
	To     string `json:"to" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

type MintRequest struct {
	To     string `json:"to" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

// Auth

func (g *Gateway) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := g.accounts.Register(c.Request.Context(), req.Email, req.Password, identity.Role(req.Role))
	if err != nil {
		g.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": account.ID, "email": account.Email, "role": account.Role})
}

func (g *Gateway) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := g.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		g.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Vehicles

func (g *Gateway) listVehicles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"vehicles": g.vehicles.List()})
}

func (g *Gateway) getVehicle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	record := g.vehicles.Get(id)
	if record.Owner == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (g *Gateway) getAvailability(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicle_id": id, "available": g.vehicles.IsAvailable(id)})
}

func (g *Gateway) registerVehicle(c *gin.Context) {
	var req RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id, err := g.vehicles.Register(accountID(c), registry.Category(req.Category), req.PricePerDay, req.MaintenanceDue)
	if err != nil {
		g.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (g *Gateway) updateVehicle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := g.vehicles.Update(accountID(c), id, req.PricePerDay, req.Available, req.HasInsurance); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g.vehicles.Get(id))
}

func (g *Gateway) transferVehicle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req TransferVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := g.vehicles.TransferOwnership(accountID(c), id, req.NewOwner); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "owner": req.NewOwner})
}

// Insurance

func (g *Gateway) getPolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	policy, err := g.policies.GetPolicy(id)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (g *Gateway) getVehiclePolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	policy, err := g.policies.PolicyForVehicle(id)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (g *Gateway) purchasePolicy(c *gin.Context) {
	var req PurchasePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	duration := time.Duration(req.DurationDays) * 24 * time.Hour
	id, err := g.policies.Purchase(accountID(c), req.VehicleID, req.Premium, req.Coverage, duration, req.Payment)
	if err != nil {
		g.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (g *Gateway) claimPolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req ClaimPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := g.policies.Claim(accountID(c), id, req.Amount); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "paid": req.Amount})
}

func (g *Gateway) cancelPolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := g.policies.Cancel(accountID(c), id); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": false})
}

// Rentals

func (g *Gateway) initiateRental(c *gin.Context) {
	var req InitiateRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	r, err := g.engine.Initiate(accountID(c), req.VehicleID, req.Days)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (g *Gateway) completeRental(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := g.engine.Complete(accountID(c), id); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "completed": true})
}

func (g *Gateway) raiseDispute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := g.engine.RaiseDispute(accountID(c), id); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "disputed": true})
}

func (g *Gateway) resolveDispute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := g.engine.ResolveDispute(accountID(c), id, req.RefundToRenter); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "refund_to_renter": req.RefundToRenter})
}

func (g *Gateway) getRental(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	r, err := g.engine.Get(id)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (g *Gateway) listRentals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rentals": g.engine.ListByRenter(accountID(c))})
}

// Credits

func (g *Gateway) getBalance(c *gin.Context) {
	account := accountID(c)
	c.JSON(http.StatusOK, gin.H{"account": account, "balance": g.credits.BalanceOf(account)})
}

func (g *Gateway) approveCredits(c *gin.Context) {
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	g.credits.Approve(accountID(c), req.Spender, req.Amount)
	c.JSON(http.StatusOK, gin.H{"spender": req.Spender, "allowance": req.Amount})
}

func (g *Gateway) transferCredits(c *gin.Context) {
	var req TransferCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := g.credits.Transfer(accountID(c), req.To, req.Amount); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"to": req.To, "amount": req.Amount})
}

func (g *Gateway) mintCredits(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := g.credits.Mint(accountID(c), req.To, req.Amount); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"to": req.To, "amount": req.Amount})
}

// Archive

func (g *Gateway) vehicleHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	var events []archive.StoredEvent
	err := g.breakers.Execute("archive", func() error {
		var qerr error
		events, qerr = g.store.VehicleHistory(c.Request.Context(), id, limit)
		return qerr
	})
	if err != nil {
		if errors.Is(err, circuit.ErrCircuitOpen) || errors.Is(err, circuit.ErrTooManyRequests) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history temporarily unavailable"})
			return
		}
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicle_id": id, "events": events})
}

func (g *Gateway) marketSummary(c *gin.Context) {
	var summary *archive.Summary
	err := g.breakers.Execute("archive", func() error {
		var qerr error
		summary, qerr = g.store.MarketSummary(c.Request.Context())
		return qerr
	})
	if err != nil {
		if errors.Is(err, circuit.ErrCircuitOpen) || errors.Is(err, circuit.ErrTooManyRequests) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summary temporarily unavailable"})
			return
		}
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Error mapping

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// writeError translates domain errors into HTTP responses. Capability
// failures are 403, precondition failures 409, malformed input 400,
// missing entities 404; anything unrecognized is a 500.
func (g *Gateway) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrNotOwner),
		errors.Is(err, rental.ErrNotRenter),
		errors.Is(err, rental.ErrNotAdmin),
		errors.Is(err, insurance.ErrNotPolicyOwner),
		errors.Is(err, credit.ErrNotMinter):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	case errors.Is(err, rental.ErrVehicleNotAvailable),
		errors.Is(err, rental.ErrInsuranceRequired),
		errors.Is(err, rental.ErrRentalAlreadyCompleted),
		errors.Is(err, rental.ErrRentalPeriodNotOver),
		errors.Is(err, insurance.ErrPolicyNotActive),
		errors.Is(err, insurance.ErrPolicyExpired),
		errors.Is(err, insurance.ErrClaimExceedsCoverage),
		errors.Is(err, credit.ErrInsufficientBalance),
		errors.Is(err, credit.ErrInsufficientAllowance),
		errors.Is(err, credit.ErrSupplyOverflow),
		errors.Is(err, identity.ErrAccountExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, registry.ErrInvalidCategory),
		errors.Is(err, rental.ErrInvalidRentalDays),
		errors.Is(err, rental.ErrEscrowOverflow),
		errors.Is(err, insurance.ErrIncorrectPremium),
		errors.Is(err, credit.ErrZeroAmount),
		errors.Is(err, identity.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, registry.ErrVehicleNotFound),
		errors.Is(err, rental.ErrRentalNotFound),
		errors.Is(err, insurance.ErrPolicyNotFound),
		errors.Is(err, identity.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, identity.ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})

	default:
		g.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
