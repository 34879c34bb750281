package models

import (
	"time"
)

// OrderStatus order lifecycle status
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"   // order detected, proxy not yet deployed
	OrderStatusDeployed  OrderStatus = "DEPLOYED"  // proxy deployed, awaiting settlement
	OrderStatusCompleted OrderStatus = "COMPLETED" // settlement executed (or nothing left to settle)
	OrderStatusFailed    OrderStatus = "FAILED"    // retries exhausted
)

// orderTransitions is the closed legal-transition table. Every worker goes
// through CanTransition before mutating an order; there is no other path.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:  {OrderStatusDeployed, OrderStatusFailed},
	OrderStatusDeployed: {OrderStatusCompleted, OrderStatusFailed},
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the order lifecycle.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// IsValid reports whether s is a known status value.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusDeployed, OrderStatusCompleted, OrderStatusFailed:
		return true
	}
	return false
}

// Order is one bridge funding cycle for a universal deposit address.
// The id is keccak256 over the natural key, so creation is idempotent; the
// composite unique index on (universal_address, source_chain_id, nonce)
// collapses concurrent creators to one row. Orders are never deleted.
type Order struct {
	ID string `json:"id" gorm:"primaryKey;size:66"` // 0x + 32-byte keccak hex

	UniversalAddress string `json:"universal_address" gorm:"size:42;not null;index;uniqueIndex:idx_orders_natural_key,priority:1"`
	SourceChainID    int64  `json:"source_chain_id" gorm:"not null;uniqueIndex:idx_orders_natural_key,priority:2"`
	Nonce            int64  `json:"nonce" gorm:"not null;uniqueIndex:idx_orders_natural_key,priority:3"`

	DestinationChainID      int64  `json:"destination_chain_id" gorm:"not null"`
	OwnerAddress            string `json:"owner_address" gorm:"size:42;not null"`
	RecipientAddress        string `json:"recipient_address" gorm:"size:42;not null"`
	SourceTokenAddress      string `json:"source_token_address" gorm:"size:42;not null"`
	DestinationTokenAddress string `json:"destination_token_address" gorm:"size:42;not null"`

	// Amount in the token's smallest unit, stored as NUMERIC(78,0) so any
	// uint256 fits.
	Amount string `json:"amount" gorm:"type:numeric(78,0);not null"`

	Status               OrderStatus `json:"status" gorm:"size:16;not null;default:CREATED;index"`
	TransactionHash      *string     `json:"transaction_hash" gorm:"size:66"`
	BridgeTransactionURL *string     `json:"bridge_transaction_url"`
	Message              *string     `json:"message" gorm:"type:text"`
	Retries              int         `json:"retries" gorm:"default:0"`

	// ClientID of the API client whose registration produced this order.
	ClientID *string `json:"client_id,omitempty" gorm:"size:64;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the gorm table name
func (Order) TableName() string {
	return "orders"
}
