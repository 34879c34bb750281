package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gnosischain/universal-deposit/internal/cache"
	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/middleware"
	"github.com/gnosischain/universal-deposit/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AddressResolver resolves the deterministic universal deposit address.
type AddressResolver interface {
	ResolveUniversalAddress(ctx context.Context, chainID int64, owner, recipient string, destinationChainID int64) (string, error)
}

// AddressRegistry is the cache surface used by address registration.
type AddressRegistry interface {
	RegisterUDA(ctx context.Context, p cache.RegisterUDAParams) error
	IncrRegistrations(ctx context.Context, ownerAddress string, day time.Time, window time.Duration) (int64, error)
}

// AddressHandler serves address resolution and registration.
type AddressHandler struct {
	cfg    *config.Config
	cache  AddressRegistry
	chains AddressResolver
	logger *logrus.Logger
}

// NewAddressHandler creates an AddressHandler instance.
func NewAddressHandler(cfg *config.Config, addressCache AddressRegistry, chains AddressResolver, logger *logrus.Logger) *AddressHandler {
	return &AddressHandler{cfg: cfg, cache: addressCache, chains: chains, logger: logger}
}

// RegisterAddressRequest is the registration request body; the same shape is
// accepted as query parameters by the read-only resolution endpoint.
type RegisterAddressRequest struct {
	OwnerAddress       string `json:"ownerAddress" form:"ownerAddress" binding:"required"`
	RecipientAddress   string `json:"recipientAddress" form:"recipientAddress" binding:"required"`
	SourceChainID      int64  `json:"sourceChainId" form:"sourceChainId" binding:"required"`
	DestinationChainID int64  `json:"destinationChainId" form:"destinationChainId" binding:"required"`
}

// validateRoute checks the source/destination pair against the configured
// network registry. Only enabled networks participate and only networks
// flagged as source can originate deposits.
func (h *AddressHandler) validateRoute(sourceChainID, destinationChainID int64) (string, bool) {
	if sourceChainID == destinationChainID {
		return "source and destination chain must differ", false
	}
	src, ok := h.cfg.NetworkByChainID(sourceChainID)
	if !ok {
		return "source chain is not supported", false
	}
	if !src.Source {
		return "source chain cannot originate deposits", false
	}
	if _, ok := h.cfg.NetworkByChainID(destinationChainID); !ok {
		return "destination chain is not supported", false
	}
	return "", true
}

// RegisterAddress handles POST /api/v1/register-address. Resolves the
// deterministic deposit address for (owner, recipient, destination chain) and
// activates it for balance watching. Re-registering an active address only
// refreshes its TTL; detection progress is preserved.
func (h *AddressHandler) RegisterAddress(c *gin.Context) {
	var req RegisterAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
			"message": err.Error(),
			"code":    "INVALID_BODY",
		})
		return
	}

	if !utils.IsHexAddress(req.OwnerAddress) || !utils.IsHexAddress(req.RecipientAddress) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid address",
			"message": "ownerAddress and recipientAddress must be 20-byte hex addresses",
			"code":    "INVALID_ADDRESS",
		})
		return
	}

	if msg, ok := h.validateRoute(req.SourceChainID, req.DestinationChainID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Unsupported route",
			"message": msg,
			"code":    "INVALID_ROUTE",
		})
		return
	}

	owner := utils.NormalizeAddress(req.OwnerAddress)
	count, err := h.cache.IncrRegistrations(c.Request.Context(), owner, time.Now(), 24*time.Hour)
	if err != nil {
		h.logger.WithError(err).Error("register: rate limit check failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal error",
			"code":    "RATE_LIMIT_CHECK_FAILED",
		})
		return
	}
	if count > int64(h.cfg.API.RateLimitMaxDaily) {
		h.logger.WithFields(logrus.Fields{"owner": owner, "count": count}).Warn("register: daily rate limit exceeded")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error":   "Rate limit exceeded",
			"message": "Daily registration limit reached for this owner",
			"code":    "RATE_LIMITED",
		})
		return
	}

	universalAddress, err := h.chains.ResolveUniversalAddress(
		c.Request.Context(), req.SourceChainID, req.OwnerAddress, req.RecipientAddress, req.DestinationChainID)
	if err != nil {
		h.logger.WithError(err).Error("register: address resolution failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "Address resolution failed",
			"code":    "RESOLUTION_FAILED",
		})
		return
	}

	clientID := c.GetString(middleware.ClientIDKey)
	if err := h.cache.RegisterUDA(c.Request.Context(), cache.RegisterUDAParams{
		UniversalAddress:   universalAddress,
		OwnerAddress:       req.OwnerAddress,
		RecipientAddress:   req.RecipientAddress,
		SourceChainID:      req.SourceChainID,
		DestinationChainID: req.DestinationChainID,
		TTL:                h.cfg.RegistrationTTL(),
		ClientID:           clientID,
	}); err != nil {
		h.logger.WithError(err).Error("register: cache write failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Registration failed",
			"code":    "REGISTRATION_FAILED",
		})
		return
	}

	requestID := uuid.NewString()
	h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"uda":        universalAddress,
		"owner":      owner,
		"client_id":  clientID,
	}).Info("address registered for watching")

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"requestId":        requestID,
		"universalAddress": universalAddress,
		"expiresInSeconds": int64(h.cfg.RegistrationTTL().Seconds()),
	})
}

// ResolveAddress handles GET /api/v1/address. Pure resolution; nothing is
// registered and no TTL is touched.
func (h *AddressHandler) ResolveAddress(c *gin.Context) {
	var req RegisterAddressRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid query parameters",
			"message": err.Error(),
			"code":    "INVALID_QUERY",
		})
		return
	}
	if !utils.IsHexAddress(req.OwnerAddress) || !utils.IsHexAddress(req.RecipientAddress) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid address",
			"code":    "INVALID_ADDRESS",
		})
		return
	}
	if msg, ok := h.validateRoute(req.SourceChainID, req.DestinationChainID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Unsupported route",
			"message": msg,
			"code":    "INVALID_ROUTE",
		})
		return
	}

	universalAddress, err := h.chains.ResolveUniversalAddress(
		c.Request.Context(), req.SourceChainID, req.OwnerAddress, req.RecipientAddress, req.DestinationChainID)
	if err != nil {
		h.logger.WithError(err).Error("resolve: address resolution failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "Address resolution failed",
			"code":    "RESOLUTION_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"universalAddress": universalAddress,
	})
}
