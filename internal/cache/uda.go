package cache

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/gnosischain/universal-deposit/internal/utils"

	"github.com/redis/go-redis/v9"
)

// NonceNone is the sentinel for "no nonce processed yet", distinct from any
// real on-chain nonce (the proxy counter starts at 0).
const NonceNone int64 = -1

const udaIndexKey = "uda:index"

// UDARecord is the ephemeral detection state for one registered universal
// deposit address.
type UDARecord struct {
	UniversalAddress   string
	OwnerAddress       string
	RecipientAddress   string
	DestinationChainID int64
	SourceChainID      int64
	// LastProcessedNonce is the sole idempotency guard against re-emitting a
	// deploy job for a nonce already turned into an order. Monotonically
	// non-decreasing per address.
	LastProcessedNonce int64
	// LastDetectedBalance is observability only; never drives decisions.
	LastDetectedBalance *big.Int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ClientID            string
}

// UDAStateUpdate is a partial update applied by the watcher. Nil fields are
// left untouched; TTL is never modified here.
type UDAStateUpdate struct {
	LastProcessedNonce  *int64
	LastDetectedBalance *big.Int
}

// RegisterUDAParams parameters for registering/refreshing an address.
type RegisterUDAParams struct {
	UniversalAddress   string
	OwnerAddress       string
	RecipientAddress   string
	DestinationChainID int64
	SourceChainID      int64
	TTL                time.Duration
	ClientID           string
}

func udaKey(address string) string {
	return "uda:" + utils.NormalizeAddress(address)
}

// RegisterUDA creates or refreshes the record and resets its TTL. Detection
// progress (last processed nonce, last detected balance) and the original
// creation time survive a refresh: re-registering must not cause a deposit to
// be processed twice. The address is also added to the enumerable index.
func (c *Cache) RegisterUDA(ctx context.Context, p RegisterUDAParams) error {
	key := udaKey(p.UniversalAddress)

	existing, err := c.rdb.HMGet(ctx, key, "lastProcessedNonce", "lastDetectedBalance", "createdAt").Result()
	if err != nil {
		return fmt.Errorf("read existing record: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	lastNonce := strconv.FormatInt(NonceNone, 10)
	if s, ok := existing[0].(string); ok && s != "" {
		lastNonce = s
	}
	lastBalance := "0"
	if s, ok := existing[1].(string); ok && s != "" {
		lastBalance = s
	}
	createdAt := now
	if s, ok := existing[2].(string); ok && s != "" {
		createdAt = s
	}

	fields := map[string]interface{}{
		"universalAddress":    p.UniversalAddress,
		"ownerAddress":        p.OwnerAddress,
		"recipientAddress":    p.RecipientAddress,
		"destinationChainId":  strconv.FormatInt(p.DestinationChainID, 10),
		"sourceChainId":       strconv.FormatInt(p.SourceChainID, 10),
		"lastProcessedNonce":  lastNonce,
		"lastDetectedBalance": lastBalance,
		"createdAt":           createdAt,
		"updatedAt":           now,
	}
	if p.ClientID != "" {
		fields["clientId"] = p.ClientID
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, p.TTL)
	pipe.SAdd(ctx, udaIndexKey, utils.NormalizeAddress(p.UniversalAddress))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register address: %w", err)
	}
	return nil
}

// GetUDA returns the record or nil when the TTL has expired. Records missing
// required fields are treated as expired too, guarding against partial writes.
func (c *Cache) GetUDA(ctx context.Context, address string) (*UDARecord, error) {
	res, err := c.rdb.HGetAll(ctx, udaKey(address)).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	if res["ownerAddress"] == "" || res["recipientAddress"] == "" ||
		res["destinationChainId"] == "" || res["sourceChainId"] == "" {
		return nil, nil
	}

	rec := &UDARecord{
		UniversalAddress:   res["universalAddress"],
		OwnerAddress:       res["ownerAddress"],
		RecipientAddress:   res["recipientAddress"],
		LastProcessedNonce: NonceNone,
		ClientID:           res["clientId"],
	}
	if rec.UniversalAddress == "" {
		rec.UniversalAddress = address
	}
	rec.DestinationChainID, _ = strconv.ParseInt(res["destinationChainId"], 10, 64)
	rec.SourceChainID, _ = strconv.ParseInt(res["sourceChainId"], 10, 64)
	if n, err := strconv.ParseInt(res["lastProcessedNonce"], 10, 64); err == nil {
		rec.LastProcessedNonce = n
	}
	rec.LastDetectedBalance = big.NewInt(0)
	if b, ok := new(big.Int).SetString(res["lastDetectedBalance"], 10); ok {
		rec.LastDetectedBalance = b
	}
	if t, err := time.Parse(time.RFC3339, res["createdAt"]); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, res["updatedAt"]); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

// ListUDAAddresses returns all indexed addresses. The index may hold stale
// members whose record already expired; callers prune those via PruneUDA.
func (c *Cache) ListUDAAddresses(ctx context.Context) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, udaIndexKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return members, err
}

// UpdateUDAState applies a partial state update without touching the TTL.
// Both fields are idempotent overwrites with the latest observed value, so
// concurrent writers cannot race destructively.
func (c *Cache) UpdateUDAState(ctx context.Context, address string, upd UDAStateUpdate) error {
	fields := map[string]interface{}{
		"updatedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if upd.LastProcessedNonce != nil {
		fields["lastProcessedNonce"] = strconv.FormatInt(*upd.LastProcessedNonce, 10)
	}
	if upd.LastDetectedBalance != nil {
		fields["lastDetectedBalance"] = upd.LastDetectedBalance.String()
	}
	return c.rdb.HSet(ctx, udaKey(address), fields).Err()
}

// PruneUDA removes a stale index entry after its record expired.
func (c *Cache) PruneUDA(ctx context.Context, address string) error {
	return c.rdb.SRem(ctx, udaIndexKey, utils.NormalizeAddress(address)).Err()
}
