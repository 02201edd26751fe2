// Package vm hosts contracts: it keeps the deployed contract table, runs
// calls inside state backend transactions and fans out committed logs.
package vm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/govm-net/hellokv/abi"
	vmcontext "github.com/govm-net/hellokv/context"
	_ "github.com/govm-net/hellokv/context/badger"
	_ "github.com/govm-net/hellokv/context/db"
	_ "github.com/govm-net/hellokv/context/memory"
	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/logger"
	"github.com/govm-net/hellokv/repository"
	"github.com/govm-net/hellokv/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// LogTopic is the event bus topic committed log entries are published on.
// Subscribers receive a single types.LogEntry argument.
const LogTopic = "contract:log"

const defaultCacheSize = 128

// Engine is responsible for contract deployment and execution
type Engine struct {
	config *Config
	state  types.BlockchainContext // state backend
	repo   *repository.Manager
	kinds  map[string]core.Contract
	cache  *lru.Cache // account -> core.Contract
	bus    EventBus.Bus
	subs   *subscribers
	stats  *metrics
	logger *zap.Logger

	// calls run one at a time
	mu sync.Mutex
}

// Config represents engine configuration
type Config struct {
	ContextType    string                // Blockchain context type
	ContextParams  map[string]any        // Blockchain context parameters
	CodeManagerDir string                // Deployment record directory
	CacheSize      int                   // Deployment cache entries
	Metrics        prometheus.Registerer // nil disables registration
	Logger         *zap.Logger
}

// NewEngine creates a new contract engine
func NewEngine(config *Config) (*Engine, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logger.OrNop(config.Logger)

	size := config.CacheSize
	if size == 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment cache: %w", err)
	}

	stats, err := newMetrics(config.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	repo, err := repository.NewManager(config.CodeManagerDir, log.Named("repository"))
	if err != nil {
		return nil, fmt.Errorf("failed to create code manager: %w", err)
	}

	state, err := vmcontext.Get(vmcontext.ContextType(config.ContextType), backendParams(config, log))
	if err != nil {
		return nil, fmt.Errorf("failed to get context: %w", err)
	}

	bus := EventBus.New()
	subs := newSubscribers()
	if err := bus.Subscribe(LogTopic, subs.dispatch); err != nil {
		state.Close()
		return nil, fmt.Errorf("failed to subscribe log fan-out: %w", err)
	}

	return &Engine{
		config: config,
		state:  state,
		repo:   repo,
		kinds:  make(map[string]core.Contract),
		cache:  cache,
		bus:    bus,
		subs:   subs,
		stats:  stats,
		logger: log,
	}, nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}
	if config.CodeManagerDir == "" {
		return fmt.Errorf("code manager directory is empty")
	}
	if config.CacheSize < 0 {
		return fmt.Errorf("invalid cache size: %d", config.CacheSize)
	}
	if config.ContextType == "" {
		config.ContextType = string(vmcontext.DefaultContextType())
	}
	return nil
}

// backendParams copies the configured params and hands the engine logger
// to backends that log on their own.
func backendParams(config *Config, log *zap.Logger) map[string]any {
	params := make(map[string]any, len(config.ContextParams)+1)
	for k, v := range config.ContextParams {
		params[k] = v
	}
	if _, ok := params["logger"]; !ok {
		params["logger"] = log
	}
	return params
}

// GetContext returns the state backend
func (e *Engine) GetContext() types.BlockchainContext {
	return e.state
}

// SetBlockInfo moves the engine to a new block
func (e *Engine) SetBlockInfo(height, timestamp uint64, hash types.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SetBlockInfo(height, timestamp, hash)
}

// Register adds a contract kind that can later be deployed by name
func (e *Engine) Register(contract core.Contract) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if contract.Name == "" {
		return fmt.Errorf("%w: contract kind has no name", core.ErrInvalidArgument)
	}
	if _, ok := e.kinds[contract.Name]; ok {
		return fmt.Errorf("contract kind %s already registered", contract.Name)
	}
	e.kinds[contract.Name] = contract
	return nil
}

// Deploy places a registered contract kind on account
func (e *Engine) Deploy(account core.AccountID, kind string) (*repository.Deployment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := core.ParseAccountID(account.String()); err != nil {
		return nil, err
	}
	contract, ok := e.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown contract kind %s", core.ErrContractNotFound, kind)
	}
	d, err := e.repo.RegisterDeployment(account, contract)
	if err != nil {
		return nil, err
	}
	e.cache.Add(account, contract)
	return d, nil
}

// Deployments lists every deployed contract
func (e *Engine) Deployments() ([]*repository.Deployment, error) {
	return e.repo.ListDeployments()
}

// ABI describes the contract deployed on account
func (e *Engine) ABI(account core.AccountID) (*abi.ABI, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	contract, err := e.resolve(account)
	if err != nil {
		return nil, err
	}
	return abi.FromContract(contract), nil
}

// resolve finds the contract kind deployed on account
func (e *Engine) resolve(account core.AccountID) (core.Contract, error) {
	if v, ok := e.cache.Get(account); ok {
		return v.(core.Contract), nil
	}
	d, err := e.repo.GetDeployment(account)
	if errors.Is(err, repository.ErrNotDeployed) {
		return core.Contract{}, fmt.Errorf("%w: %s", core.ErrContractNotFound, account)
	}
	if err != nil {
		return core.Contract{}, err
	}
	contract, ok := e.kinds[d.Kind]
	if !ok {
		return core.Contract{}, fmt.Errorf("%w: kind %s of %s is not registered", core.ErrContractNotFound, d.Kind, account)
	}
	if hash, err := repository.ABIHash(contract); err == nil && hash != d.ABIHash {
		e.logger.Warn("contract ABI changed since deployment",
			zap.String("account", account.String()),
			zap.String("deployed", d.ABIHash),
			zap.String("current", hash))
	}
	e.cache.Add(account, contract)
	return contract, nil
}

// Execute runs a state changing call. Storage writes, log lines and the
// deposit credit of a failed call are all discarded. A failed call returns
// both a result with Success false and the error.
func (e *Engine) Execute(ctx context.Context, params types.CallParams) (*types.ExecutionResult, error) {
	start := time.Now()
	result := &types.ExecutionResult{ReceiptID: uuid.NewString()}

	entries, err := e.execute(ctx, params, result)
	e.stats.observe(params.Function, err, time.Since(start))
	if err != nil {
		e.logger.Debug("call failed",
			zap.String("receipt", result.ReceiptID),
			zap.String("contract", params.Contract.String()),
			zap.String("method", params.Function),
			zap.Error(err))
		result.Success = false
		result.Data = nil
		result.Logs = nil
		result.Error = err.Error()
		return result, err
	}

	e.logger.Debug("call succeeded",
		zap.String("receipt", result.ReceiptID),
		zap.String("contract", params.Contract.String()),
		zap.String("method", params.Function),
		zap.Int("logs", len(entries)))
	return result, nil
}

func (e *Engine) execute(ctx context.Context, params types.CallParams, result *types.ExecutionResult) ([]types.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	contract, err := e.resolve(params.Contract)
	if err != nil {
		return nil, err
	}
	method, ok := contract.Method(params.Function)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrFunctionNotFound, params.Function)
	}

	signer, err := core.ParseAccountID(params.Signer.String())
	if err != nil {
		return nil, fmt.Errorf("invalid signer: %w", err)
	}
	predecessor := signer
	if params.Predecessor != "" {
		if predecessor, err = core.ParseAccountID(params.Predecessor.String()); err != nil {
			return nil, fmt.Errorf("invalid predecessor: %w", err)
		}
	}
	deposit := new(uint256.Int)
	if params.Deposit != nil {
		deposit.Set(params.Deposit)
	}
	if !deposit.IsZero() && !method.Payable {
		return nil, fmt.Errorf("%w: %s", core.ErrDepositNotAllowed, method.Name)
	}

	txn, err := e.state.Begin(params.Contract)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Discard()

	cc := &callContext{
		account:     params.Contract,
		signer:      signer,
		predecessor: predecessor,
		height:      e.state.BlockHeight(),
		timestamp:   e.state.BlockTimestamp(),
		deposit:     deposit,
		txn:         txn,
	}
	data, err := invoke(method, cc, params.Args)
	if err != nil {
		return nil, err
	}

	if !deposit.IsZero() {
		if err := txn.Credit(params.Contract, deposit); err != nil {
			return nil, fmt.Errorf("failed to credit deposit: %w", err)
		}
	}
	entries := make([]types.LogEntry, len(cc.logs))
	for i, line := range cc.logs {
		entries[i] = types.LogEntry{
			BlockHeight: cc.height,
			ReceiptID:   result.ReceiptID,
			Contract:    params.Contract,
			Index:       i,
			Line:        line,
		}
		if err := txn.Log(entries[i]); err != nil {
			return nil, fmt.Errorf("failed to record log: %w", err)
		}
	}
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	e.stats.logs.Add(float64(len(entries)))
	for _, entry := range entries {
		e.bus.Publish(LogTopic, entry)
	}

	result.Success = true
	result.Data = data
	result.Logs = cc.logs
	return entries, nil
}

// View runs a read-only method and returns its JSON encoded result.
// Nothing the method does is kept.
func (e *Engine) View(ctx context.Context, contract core.AccountID, function string, args []byte) ([]byte, error) {
	start := time.Now()
	data, err := e.view(ctx, contract, function, args)
	e.stats.observe(function, err, time.Since(start))
	return data, err
}

func (e *Engine) view(ctx context.Context, account core.AccountID, function string, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	contract, err := e.resolve(account)
	if err != nil {
		return nil, err
	}
	method, ok := contract.Method(function)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrFunctionNotFound, function)
	}
	if !method.View {
		return nil, fmt.Errorf("%w: %s", core.ErrNotViewMethod, function)
	}

	txn, err := e.state.Begin(account)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Discard()

	return invoke(method, &callContext{
		account:   account,
		height:    e.state.BlockHeight(),
		timestamp: e.state.BlockTimestamp(),
		readOnly:  true,
		txn:       txn,
	}, args)
}

// invoke runs the handler and encodes its result, turning a panic into a
// reverted call.
func invoke(method core.Method, cc *callContext, args []byte) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("%w: %w", core.ErrExecutionReverted, rerr)
			} else {
				err = fmt.Errorf("%w: %v", core.ErrExecutionReverted, r)
			}
		}
	}()

	out, err := method.Handler(cc, args)
	if err != nil {
		return nil, err
	}
	data, err = json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}

// Events lists the committed log entries of a contract
func (e *Engine) Events(account core.AccountID) ([]types.LogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Events(account)
}

// Balance returns the balance of account
func (e *Engine) Balance(account core.AccountID) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Balance(account)
}

// Subscribe calls fn for every committed log entry, in commit order.
// fn runs while the engine lock is held and must not call back into the
// engine. The returned function removes this subscription only.
func (e *Engine) Subscribe(fn func(types.LogEntry)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil subscriber", core.ErrInvalidArgument)
	}
	return e.subs.add(fn), nil
}

// Close closes the engine
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}
