package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/govm-net/hellokv/context"
	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/types"
	"github.com/holiman/uint256"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	defaultDBPath = "./sqlite.db"
)

var errTxnClosed = errors.New("transaction already closed")

type DBBlock struct {
	gorm.Model
	Height uint64 `gorm:"column:height;not null;unique;index"`
	Time   uint64 `gorm:"column:block_time;not null"`
	Hash   string `gorm:"column:block_hash;not null;size:66"`
}

func (DBBlock) TableName() string {
	return "blocks"
}

// DBStateEntry is one storage key of one contract account
type DBStateEntry struct {
	ID       uint   `gorm:"primaryKey"`
	Contract string `gorm:"column:contract_account;not null;size:64;uniqueIndex:idx_contract_key"`
	Key      []byte `gorm:"column:storage_key;type:blob;not null;uniqueIndex:idx_contract_key"`
	Value    []byte `gorm:"column:storage_value;type:blob;not null"`
}

// TableName specifies the table name for DBStateEntry
func (DBStateEntry) TableName() string {
	return "state_entries"
}

// DBBalance represents the balance in database, stored as a decimal string
type DBBalance struct {
	Account string `gorm:"column:account;primaryKey;size:64"`
	Amount  string `gorm:"column:balance;not null;default:'0'"`
}

// TableName specifies the table name for DBBalance
func (DBBalance) TableName() string {
	return "balances"
}

// DBEvent represents a log line in the database
type DBEvent struct {
	gorm.Model
	BlockHeight uint64 `gorm:"column:block_height;not null;index"`
	ReceiptID   string `gorm:"column:receipt_id;not null;index;size:36"`
	Contract    string `gorm:"column:contract_account;not null;index;size:64"`
	LogIndex    int    `gorm:"column:log_index;not null"`
	Line        string `gorm:"column:line;not null"`
}

// TableName specifies the table name for DBEvent
func (DBEvent) TableName() string {
	return "events"
}

// Context implements the BlockchainContext interface using SQLite with GORM
type Context struct {
	db           *gorm.DB
	currentBlock DBBlock
}

func init() {
	context.Register(context.DBContextType, NewContext)
}

// NewContext creates a new SQLite-backed blockchain context using GORM
func NewContext(params map[string]any) (types.BlockchainContext, error) {
	if params == nil {
		params = make(map[string]any)
	}
	dbPath := defaultDBPath
	if path, ok := params["db_path"].(string); ok && path != "" {
		dbPath = path
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection serializes writers the way the host serializes calls
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ctx := &Context{db: db}
	if err := ctx.initDB(); err != nil {
		return nil, err
	}
	return ctx, nil
}

func (c *Context) initDB() error {
	err := c.db.AutoMigrate(
		&DBBlock{},
		&DBStateEntry{},
		&DBBalance{},
		&DBEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// resume from the highest known block
	var last DBBlock
	result := c.db.Order("height DESC").Limit(1).Find(&last)
	if result.Error != nil {
		return fmt.Errorf("failed to load last block: %w", result.Error)
	}
	c.currentBlock = last
	return nil
}

// SetBlockInfo records the block and makes it current
func (c *Context) SetBlockInfo(height uint64, timestamp uint64, hash types.Hash) error {
	block := DBBlock{Height: height, Time: timestamp, Hash: hash.String()}
	result := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "height"}},
		DoUpdates: clause.AssignmentColumns([]string{"block_time", "block_hash"}),
	}).Create(&block)
	if result.Error != nil {
		return fmt.Errorf("failed to save block: %w", result.Error)
	}
	c.currentBlock = block
	return nil
}

// BlockHeight implements types.BlockchainContext
func (c *Context) BlockHeight() uint64 {
	return c.currentBlock.Height
}

// BlockTimestamp implements types.BlockchainContext
func (c *Context) BlockTimestamp() uint64 {
	return c.currentBlock.Time
}

// Balance implements types.BlockchainContext
func (c *Context) Balance(account core.AccountID) (*uint256.Int, error) {
	return loadBalance(c.db, account)
}

func loadBalance(db *gorm.DB, account core.AccountID) (*uint256.Int, error) {
	var balance DBBalance
	result := db.Where("account = ?", account.String()).First(&balance)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return new(uint256.Int), nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get balance: %w", result.Error)
	}
	amount, err := uint256.FromDecimal(balance.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid balance for %s: %w", account, err)
	}
	return amount, nil
}

// Begin implements types.BlockchainContext
func (c *Context) Begin(contract core.AccountID) (types.StateTxn, error) {
	tx := c.db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	return &Txn{tx: tx, contract: contract}, nil
}

// Events implements types.BlockchainContext
func (c *Context) Events(contract core.AccountID) ([]types.LogEntry, error) {
	var rows []DBEvent
	result := c.db.Where("contract_account = ?", contract.String()).Order("id ASC").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list events: %w", result.Error)
	}
	out := make([]types.LogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.LogEntry{
			BlockHeight: row.BlockHeight,
			ReceiptID:   row.ReceiptID,
			Contract:    core.AccountID(row.Contract),
			Index:       row.LogIndex,
			Line:        row.Line,
		})
	}
	return out, nil
}

// Close releases the database handle
func (c *Context) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Txn wraps one gorm transaction
type Txn struct {
	tx       *gorm.DB
	contract core.AccountID
	closed   bool
}

func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, errTxnClosed
	}
	var entry DBStateEntry
	result := t.tx.Where("contract_account = ? AND storage_key = ?", t.contract.String(), key).First(&entry)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to get storage key: %w", result.Error)
	}
	return entry.Value, true, nil
}

func (t *Txn) Set(key, value []byte) error {
	if t.closed {
		return errTxnClosed
	}
	entry := DBStateEntry{Contract: t.contract.String(), Key: key, Value: value}
	result := t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_account"}, {Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_value"}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("failed to set storage key: %w", result.Error)
	}
	return nil
}

func (t *Txn) Log(entry types.LogEntry) error {
	if t.closed {
		return errTxnClosed
	}
	event := DBEvent{
		BlockHeight: entry.BlockHeight,
		ReceiptID:   entry.ReceiptID,
		Contract:    entry.Contract.String(),
		LogIndex:    entry.Index,
		Line:        entry.Line,
	}
	if err := t.tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func (t *Txn) Credit(account core.AccountID, amount *uint256.Int) error {
	if t.closed {
		return errTxnClosed
	}
	balance, err := loadBalance(t.tx, account)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	row := DBBalance{Account: account.String(), Amount: balance.Dec()}
	if err := t.tx.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	if t.closed {
		return errTxnClosed
	}
	t.closed = true
	if err := t.tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Txn) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	t.tx.Rollback()
}
