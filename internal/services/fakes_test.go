package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gnosischain/universal-deposit/internal/cache"
	"github.com/gnosischain/universal-deposit/internal/config"
	"github.com/gnosischain/universal-deposit/internal/models"
	"github.com/gnosischain/universal-deposit/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testConfig() *config.Config {
	return &config.Config{
		Watcher: config.WatcherConfig{
			IntervalSeconds:          30,
			MinBridgeAmount:          "1000000",
			RegistrationTTLHours:     24,
			HeartbeatIntervalSeconds: 5,
		},
		Workers: config.WorkersConfig{
			DeployPrefetch:        2,
			SettlePrefetch:        3,
			MaxAttempts:           5,
			SlippageBps:           500,
			ConfirmTimeoutSeconds: 180,
		},
	}
}

// fakeOrders is an in-memory OrderStore with the same transition rules as the
// real repository.
type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*models.Order

	ensureErr error
	getErr    error
	findErr   error
}

func newFakeOrders(seed ...*models.Order) *fakeOrders {
	f := &fakeOrders{orders: map[string]*models.Order{}}
	for _, o := range seed {
		cp := *o
		f.orders[o.ID] = &cp
	}
	return f
}

func (f *fakeOrders) Ensure(_ context.Context, order *models.Order) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	for _, existing := range f.orders {
		if existing.UniversalAddress == order.UniversalAddress &&
			existing.SourceChainID == order.SourceChainID &&
			existing.Nonce == order.Nonce {
			cp := *existing
			return &cp, nil
		}
	}
	cp := *order
	f.orders[order.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, status models.OrderStatus, patch *repository.StatusPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	if !models.CanTransition(o.Status, status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, o.Status, status)
	}
	o.Status = status
	if patch != nil {
		if patch.TransactionHash != nil {
			o.TransactionHash = patch.TransactionHash
		}
		if patch.BridgeTransactionURL != nil {
			o.BridgeTransactionURL = patch.BridgeTransactionURL
		}
		if patch.Message != nil {
			o.Message = patch.Message
		}
		if patch.Retries != nil {
			o.Retries = *patch.Retries
		}
	}
	return nil
}

func (f *fakeOrders) FindIncomplete(_ context.Context, _ int) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*models.Order
	for _, o := range f.orders {
		if !o.Status.IsTerminal() {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOrders) get(id string) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

// fakeCache is an in-memory AddressCache.
type fakeCache struct {
	mu      sync.Mutex
	records map[string]*cache.UDARecord
	pruned  []string
	beats   int
}

func newFakeCache(recs ...*cache.UDARecord) *fakeCache {
	f := &fakeCache{records: map[string]*cache.UDARecord{}}
	for _, r := range recs {
		cp := *r
		f.records[r.UniversalAddress] = &cp
	}
	return f
}

func (f *fakeCache) ListUDAAddresses(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for addr := range f.records {
		out = append(out, addr)
	}
	return out, nil
}

func (f *fakeCache) GetUDA(_ context.Context, address string) (*cache.UDARecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[address]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeCache) UpdateUDAState(_ context.Context, address string, upd cache.UDAStateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[address]
	if !ok {
		return nil
	}
	if upd.LastProcessedNonce != nil {
		r.LastProcessedNonce = *upd.LastProcessedNonce
	}
	if upd.LastDetectedBalance != nil {
		r.LastDetectedBalance = new(big.Int).Set(upd.LastDetectedBalance)
	}
	return nil
}

func (f *fakeCache) PruneUDA(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, address)
	f.pruned = append(f.pruned, address)
	return nil
}

func (f *fakeCache) WriteHeartbeat(_ context.Context, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return nil
}

func (f *fakeCache) record(address string) *cache.UDARecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[address]
}

// publishedJob records one publisher call.
type publishedJob struct {
	orderID string
	attempt int
}

// fakePublisher records enqueued jobs; per-order errors are injectable.
type fakePublisher struct {
	mu        sync.Mutex
	deploys   []publishedJob
	settles   []publishedJob
	retries   map[string][]publishedJob // keyed "deploy"/"settle"
	residuals []publishedJob

	deployErrFor map[string]error
	settleErr    error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{retries: map[string][]publishedJob{}}
}

func (f *fakePublisher) EnqueueDeploy(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deployErrFor[orderID]; err != nil {
		return err
	}
	f.deploys = append(f.deploys, publishedJob{orderID: orderID})
	return nil
}

func (f *fakePublisher) EnqueueSettle(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settleErr != nil {
		return f.settleErr
	}
	f.settles = append(f.settles, publishedJob{orderID: orderID})
	return nil
}

func (f *fakePublisher) EnqueueDeployRetry(_ context.Context, orderID string, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries["deploy"] = append(f.retries["deploy"], publishedJob{orderID: orderID, attempt: attempt})
	return nil
}

func (f *fakePublisher) EnqueueSettleRetry(_ context.Context, orderID string, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries["settle"] = append(f.retries["settle"], publishedJob{orderID: orderID, attempt: attempt})
	return nil
}

func (f *fakePublisher) EnqueueResidualDelay(_ context.Context, orderID string, tierIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.residuals = append(f.residuals, publishedJob{orderID: orderID, attempt: tierIndex})
	return nil
}

func (f *fakePublisher) snapshot() (deploys, settles []publishedJob, retries map[string][]publishedJob, residuals []publishedJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := map[string][]publishedJob{}
	for k, v := range f.retries {
		r[k] = append([]publishedJob(nil), v...)
	}
	return append([]publishedJob(nil), f.deploys...),
		append([]publishedJob(nil), f.settles...),
		r,
		append([]publishedJob(nil), f.residuals...)
}

// fakeChains implements ChainService via overridable function fields; nil
// fields return zero values.
type fakeChains struct {
	mu sync.Mutex

	balanceFn func(chainID int64, token, holder string) (*big.Int, error)
	nonceFn   func(chainID int64, address string) (int64, error)
	hasCodeFn func(chainID int64, address string) (bool, error)
	deployFn  func(chainID int64, owner, recipient string, destChainID int64) (string, error)
	quoteFn   func(chainID int64, address string, amount *big.Int) (*big.Int, error)
	settleFn  func(chainID int64, address, token string) (string, error)

	deployCalls int
	settleCalls int
}

func (f *fakeChains) TokenBalance(_ context.Context, chainID int64, token, holder string) (*big.Int, error) {
	if f.balanceFn == nil {
		return big.NewInt(0), nil
	}
	return f.balanceFn(chainID, token, holder)
}

func (f *fakeChains) AccountNonce(_ context.Context, chainID int64, address string) (int64, error) {
	if f.nonceFn == nil {
		return 0, nil
	}
	return f.nonceFn(chainID, address)
}

func (f *fakeChains) HasCode(_ context.Context, chainID int64, address string) (bool, error) {
	if f.hasCodeFn == nil {
		return false, nil
	}
	return f.hasCodeFn(chainID, address)
}

func (f *fakeChains) USDCAddress(chainID int64) (common.Address, error) {
	switch chainID {
	case 41923:
		return common.HexToAddress("0x836d275563bAb5E93Fd6Ca62a95dB7065Da94342"), nil
	case 100:
		return common.HexToAddress("0x2a22f9c3b484c3629090FeED35F17Ff8F88f76F0"), nil
	}
	return common.Address{}, fmt.Errorf("chain %d not configured", chainID)
}

func (f *fakeChains) FeeTokenAddress(chainID int64) (common.Address, error) {
	return f.USDCAddress(chainID)
}

func (f *fakeChains) DeployProxy(_ context.Context, chainID int64, owner, recipient string, destChainID int64) (string, error) {
	f.mu.Lock()
	f.deployCalls++
	f.mu.Unlock()
	if f.deployFn == nil {
		return "0xdeadbeef", nil
	}
	return f.deployFn(chainID, owner, recipient, destChainID)
}

func (f *fakeChains) QuoteBridgeFee(_ context.Context, chainID int64, address string, amount *big.Int, _ string, _ int64) (*big.Int, error) {
	if f.quoteFn == nil {
		return big.NewInt(1000), nil
	}
	return f.quoteFn(chainID, address, amount)
}

func (f *fakeChains) SettleOrder(_ context.Context, chainID int64, address, token string, _ int64, _ *big.Int) (string, error) {
	f.mu.Lock()
	f.settleCalls++
	f.mu.Unlock()
	if f.settleFn == nil {
		return "0xfeedface", nil
	}
	return f.settleFn(chainID, address, token)
}
