package handlers

import (
	"net/http"

	"github.com/gnosischain/universal-deposit/internal/models"
	"github.com/gnosischain/universal-deposit/internal/repository"
	"github.com/gnosischain/universal-deposit/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultOrderListLimit = 50

// OrderHandler serves order lookups.
type OrderHandler struct {
	orders repository.OrderRepository
	logger *logrus.Logger
}

// NewOrderHandler creates an OrderHandler instance.
func NewOrderHandler(orders repository.OrderRepository, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func orderResponse(o *models.Order) gin.H {
	return gin.H{
		"id":                      o.ID,
		"universalAddress":        o.UniversalAddress,
		"ownerAddress":            o.OwnerAddress,
		"recipientAddress":        o.RecipientAddress,
		"sourceChainId":           o.SourceChainID,
		"destinationChainId":      o.DestinationChainID,
		"sourceTokenAddress":      o.SourceTokenAddress,
		"destinationTokenAddress": o.DestinationTokenAddress,
		"nonce":                   o.Nonce,
		"amount":                  o.Amount,
		"status":                  o.Status,
		"transactionHash":         o.TransactionHash,
		"bridgeTransactionUrl":    o.BridgeTransactionURL,
		"message":                 o.Message,
		"retries":                 o.Retries,
		"createdAt":               o.CreatedAt,
		"updatedAt":               o.UpdatedAt,
	}
}

// GetOrder handles GET /api/v1/orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id := c.Param("id")

	order, err := h.orders.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", id).Error("order lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Order lookup failed",
			"code":    "LOOKUP_FAILED",
		})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Order not found",
			"code":    "ORDER_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "order": orderResponse(order)})
}

// ListOrders handles GET /api/v1/orders?universalAddress=0x...
func (h *OrderHandler) ListOrders(c *gin.Context) {
	address := c.Query("universalAddress")
	if !utils.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "universalAddress query parameter must be a hex address",
			"code":    "INVALID_ADDRESS",
		})
		return
	}

	orders, err := h.orders.ListByUniversal(c.Request.Context(), address, defaultOrderListLimit)
	if err != nil {
		h.logger.WithError(err).WithField("uda", address).Error("order list failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Order list failed",
			"code":    "LIST_FAILED",
		})
		return
	}

	items := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		items = append(items, orderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": items, "count": len(items)})
}
