package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/blues/settlement/internal/config"
	"github.com/blues/settlement/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var supportedTypes = []string{"ethereum", "polygon", "bsc", "arbitrum", "optimism", "base"}

// Manager 单链管理器：连接、签名身份
type Manager struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	chainId    *big.Int
	config     config.ChainConfig
}

// NewManager 创建单链管理器，配置问题返回 ConfigurationError
func NewManager(ctx context.Context, cfg config.ChainConfig) (*Manager, error) {
	// 验证链类型
	if !isSupportedType(cfg.ChainType) {
		return nil, &config.ConfigurationError{
			Field:  "chain.chain_type",
			Reason: fmt.Sprintf("unsupported value %q, supported types: %s", cfg.ChainType, strings.Join(supportedTypes, ", ")),
		}
	}

	// 解析私钥
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, &config.ConfigurationError{Field: "chain.private_key", Reason: "is not a valid hex key"}
	}

	logger.Info("Creating %s client connection (RPC: %s)", cfg.ChainType, cfg.RpcUrl)
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "chain.rpc_url", Reason: fmt.Sprintf("dial failed: %v", err)}
	}

	manager := &Manager{
		client:     client,
		privateKey: privateKey,
		config:     cfg,
	}

	// 测试连接并核对链ID
	if err := manager.initChainId(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("Successfully created %s client (chain id %s, signer %s)",
		cfg.ChainType, manager.chainId.String(), manager.SignerAddress().Hex())
	return manager, nil
}

// initChainId 获取节点链ID，与配置不一致时拒绝启动
func (m *Manager) initChainId(ctx context.Context) error {
	networkId, err := m.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("client connection test failed (%s): %w", m.config.ChainType, err)
	}

	if m.config.ChainId != 0 && networkId.Int64() != m.config.ChainId {
		return &config.ConfigurationError{
			Field:  "chain.chain_id",
			Reason: fmt.Sprintf("configured %d but node reports %s", m.config.ChainId, networkId.String()),
		}
	}

	m.chainId = networkId
	return nil
}

func isSupportedType(chainType string) bool {
	for _, supportedType := range supportedTypes {
		if chainType == supportedType {
			return true
		}
	}
	return false
}

// GetClient 获取客户端
func (m *Manager) GetClient() *ethclient.Client {
	return m.client
}

// SignerAddress 签名账户地址
func (m *Manager) SignerAddress() common.Address {
	return crypto.PubkeyToAddress(m.privateKey.PublicKey)
}

// TransactOpts 获取交易授权
func (m *Manager) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(m.privateKey, m.chainId)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

// GetHealthStatus 获取健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"chain_type":    m.config.ChainType,
		"chain_id":      m.chainId.String(),
		"signer":        m.SignerAddress().Hex(),
		"client_status": "connected",
	}

	block, err := m.client.BlockNumber(ctx)
	if err != nil {
		health["client_status"] = "disconnected"
		return health
	}
	health["block_number"] = block
	return health
}

// Close 关闭管理器
func (m *Manager) Close() {
	m.client.Close()
	logger.Info("Chain manager closed")
}
