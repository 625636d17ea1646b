package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// escrowABI 托管合约ABI（分账所需的最小集合）
const escrowABI = `[
	{
		"inputs": [],
		"name": "distribute",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "totalAmount", "type": "uint256"},
			{"indexed": false, "name": "merchantAmount", "type": "uint256"},
			{"indexed": false, "name": "platformFee", "type": "uint256"}
		],
		"name": "FundsDistributed",
		"type": "event"
	}
]`

const (
	methodDistribute      = "distribute"
	eventFundsDistributed = "FundsDistributed"
)

// LoadABI 加载托管合约ABI，path 为空时使用内置ABI
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return abi.JSON(strings.NewReader(escrowABI))
	}

	abiData, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to load ABI from %s: %w", path, err)
	}

	// 尝试解析为完整的编译输出文件
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}

	var parsedABI abi.ABI
	if err := json.Unmarshal(abiData, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsedABI, err = abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
	} else {
		// 如果不是完整编译输出，尝试直接解析为ABI数组
		parsedABI, err = abi.JSON(bytes.NewReader(abiData))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
		}
	}

	if _, ok := parsedABI.Methods[methodDistribute]; !ok {
		return abi.ABI{}, fmt.Errorf("ABI %s has no %s method", path, methodDistribute)
	}
	return parsedABI, nil
}
