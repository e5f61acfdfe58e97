package ethereum

import (
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs for Uniswap V2 Router02 and ERC20, only the methods we call.

// MustRouterABI returns the parsed router fragment.
func MustRouterABI() abi.ABI { return mustParse(routerABIJSON()) }

// MustERC20ABI returns the parsed ERC20 fragment.
func MustERC20ABI() abi.ABI { return mustParse(erc20ABIJSON()) }

func mustParse(r io.Reader) abi.ABI {
	parsed, err := abi.JSON(r)
	if err != nil {
		panic(err)
	}
	return parsed
}

func routerABIJSON() io.Reader {
	return strings.NewReader(`[
		{
			"name": "getAmountsOut",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "path",     "type": "address[]"}
			],
			"outputs": [
				{"name": "amounts", "type": "uint256[]"}
			]
		},
		{
			"name": "swapExactTokensForETH",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "amountIn",      "type": "uint256"},
				{"name": "amountOutMin",  "type": "uint256"},
				{"name": "path",          "type": "address[]"},
				{"name": "to",            "type": "address"},
				{"name": "deadline",      "type": "uint256"}
			],
			"outputs": [
				{"name": "amounts", "type": "uint256[]"}
			]
		},
		{
			"name": "swapExactTokensForTokens",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "amountIn",      "type": "uint256"},
				{"name": "amountOutMin",  "type": "uint256"},
				{"name": "path",          "type": "address[]"},
				{"name": "to",            "type": "address"},
				{"name": "deadline",      "type": "uint256"}
			],
			"outputs": [
				{"name": "amounts", "type": "uint256[]"}
			]
		},
		{
			"name": "swapExactETHForTokens",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [
				{"name": "amountOutMin",  "type": "uint256"},
				{"name": "path",          "type": "address[]"},
				{"name": "to",            "type": "address"},
				{"name": "deadline",      "type": "uint256"}
			],
			"outputs": [
				{"name": "amounts", "type": "uint256[]"}
			]
		}
	]`)
}

func erc20ABIJSON() io.Reader {
	return strings.NewReader(`[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "_owner", "type": "address"}],
			"outputs": [{"name": "balance", "type": "uint256"}]
		},
		{
			"name": "decimals",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		},
		{
			"name": "symbol",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "string"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "_owner",   "type": "address"},
				{"name": "_spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "approve",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "_spender", "type": "address"},
				{"name": "_value",   "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`)
}
