package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gnosischain/universal-deposit/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidTransition is returned by UpdateStatus when the requested status
// change is not in the legal-transition table.
var ErrInvalidTransition = errors.New("invalid order status transition")

// StatusPatch carries the optional fields recorded alongside a status change.
type StatusPatch struct {
	TransactionHash      *string
	BridgeTransactionURL *string
	Message              *string
	Retries              *int
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	// Ensure creates the order if absent; a natural-key conflict returns the
	// existing row instead of an error.
	Ensure(ctx context.Context, order *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByNaturalKey(ctx context.Context, universalAddress string, sourceChainID, nonce int64) (*models.Order, error)
	ListByUniversal(ctx context.Context, universalAddress string, limit int) ([]*models.Order, error)
	// UpdateStatus applies a status transition plus patch. The transition is
	// validated against the closed table; illegal moves fail with
	// ErrInvalidTransition and leave the row untouched.
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, patch *StatusPatch) error
	// FindIncomplete returns orders not yet in a terminal status, oldest first.
	FindIncomplete(ctx context.Context, limit int) ([]*models.Order, error)
}

// orderRepository implements OrderRepository
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts a new order; conflicts surface as errors.
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Ensure is the idempotent create. ON CONFLICT DO NOTHING collapses concurrent
// creators of the same funding event to one row; when the insert is a no-op
// the existing row is re-read and returned.
func (r *orderRepository) Ensure(ctx context.Context, order *models.Order) (*models.Order, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(order)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return order, nil
	}

	existing, err := r.GetByNaturalKey(ctx, order.UniversalAddress, order.SourceChainID, order.Nonce)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("order %s: conflict on create but existing row not found", order.ID)
	}
	return existing, nil
}

// GetByID retrieves an order by id; returns nil, nil when not found.
func (r *orderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByNaturalKey retrieves an order by its composite natural key.
func (r *orderRepository) GetByNaturalKey(ctx context.Context, universalAddress string, sourceChainID, nonce int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("universal_address = ? AND source_chain_id = ? AND nonce = ?", universalAddress, sourceChainID, nonce).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByUniversal returns the most recent orders for a universal address.
func (r *orderRepository) ListByUniversal(ctx context.Context, universalAddress string, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("universal_address = ?", universalAddress).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus re-reads the current status inside a transaction and rejects
// moves not present in the transition table. Duplicate deliveries that already
// advanced the order therefore fail loudly here and get skipped earlier by the
// workers' status gates.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, patch *StatusPatch) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&order).Error; err != nil {
			return err
		}

		if !models.CanTransition(order.Status, status) {
			return fmt.Errorf("%w: %s -> %s (order %s)", ErrInvalidTransition, order.Status, status, id)
		}

		updates := map[string]interface{}{"status": status}
		if patch != nil {
			if patch.TransactionHash != nil {
				updates["transaction_hash"] = *patch.TransactionHash
			}
			if patch.BridgeTransactionURL != nil {
				updates["bridge_transaction_url"] = *patch.BridgeTransactionURL
			}
			if patch.Message != nil {
				updates["message"] = *patch.Message
			}
			if patch.Retries != nil {
				updates["retries"] = *patch.Retries
			}
		}

		return tx.Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
	})
}

// FindIncomplete returns all orders outside COMPLETED/FAILED for recovery.
func (r *orderRepository) FindIncomplete(ctx context.Context, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []models.OrderStatus{models.OrderStatusCompleted, models.OrderStatusFailed}).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
