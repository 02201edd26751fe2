// Package repository keeps the on-disk record of which contract kind is
// deployed on which account.
package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/govm-net/hellokv/abi"
	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/logger"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyDeployed 账户上已经部署了合约
	ErrAlreadyDeployed = errors.New("contract already deployed")
	// ErrNotDeployed 账户上没有合约
	ErrNotDeployed = errors.New("no contract deployed")
)

const deploymentFile = "deployment.json"

// Manager 部署记录管理器
type Manager struct {
	rootDir string // 记录根目录
	logger  *zap.Logger
}

// Deployment 合约部署记录
type Deployment struct {
	Account    core.AccountID `json:"account"`     // 合约账户
	Kind       string         `json:"kind"`        // 合约类型
	ABIHash    string         `json:"abi_hash"`    // ABI哈希
	DeployedAt time.Time      `json:"deployed_at"` // 部署时间
}

// NewManager 创建部署记录管理器
func NewManager(rootDir string, log *zap.Logger) (*Manager, error) {
	log = logger.OrNop(log)
	// 确保根目录存在
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		log.Error("failed to create root directory", zap.String("dir", rootDir), zap.Error(err))
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &Manager{
		rootDir: rootDir,
		logger:  log,
	}, nil
}

// RegisterDeployment 记录一个新的合约部署
func (m *Manager) RegisterDeployment(account core.AccountID, contract core.Contract) (*Deployment, error) {
	// 检查合约是否已存在
	dir := m.getContractDir(account)
	if _, err := os.Stat(filepath.Join(dir, deploymentFile)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDeployed, account)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to check contract directory: %w", err)
	}

	hash, err := ABIHash(contract)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create contract directory: %w", err)
	}

	d := &Deployment{
		Account:    account,
		Kind:       contract.Name,
		ABIHash:    hash,
		DeployedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deployment: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, deploymentFile), data, 0644); err != nil {
		// 删除已创建的目录
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to save deployment: %w", err)
	}

	m.logger.Info("contract deployed",
		zap.String("account", account.String()),
		zap.String("kind", d.Kind),
		zap.String("abi_hash", hash))
	return d, nil
}

// GetDeployment 读取账户的部署记录
func (m *Manager) GetDeployment(account core.AccountID) (*Deployment, error) {
	data, err := os.ReadFile(filepath.Join(m.getContractDir(account), deploymentFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotDeployed, account)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment: %w", err)
	}

	var d Deployment
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deployment: %w", err)
	}
	return &d, nil
}

// ListDeployments 列出所有部署记录，按账户排序
func (m *Manager) ListDeployments() ([]*Deployment, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	var out []*Deployment
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		d, err := m.GetDeployment(core.AccountID(entry.Name()))
		if errors.Is(err, ErrNotDeployed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

// ABIHash 计算合约ABI的sha256
func ABIHash(contract core.Contract) (string, error) {
	data, err := abi.FromContract(contract).JSON()
	if err != nil {
		return "", fmt.Errorf("failed to encode ABI: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// getContractDir 获取合约目录路径
func (m *Manager) getContractDir(account core.AccountID) string {
	return filepath.Join(m.rootDir, account.String())
}
