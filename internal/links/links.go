// Package links lists third-party destinations for a chain. It only builds
// URLs; nothing here is fetched.
package links

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/kjannette/trahn-swap/internal/ethereum"
)

type Link struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

const (
	CategoryExplorer = "explorer"
	CategoryDEX      = "dex"
	CategoryTools    = "tools"
	CategoryWallet   = "wallet"
)

var uniswapChain = map[int64]string{
	1:     "mainnet",
	10:    "optimism",
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
}

// Static returns the chain-independent table plus DEX front-ends for chainID.
func Static(chainID int64) []Link {
	out := []Link{
		{Name: "Block explorer", Category: CategoryExplorer, URL: ethereum.ExplorerBase(chainID)},
	}
	uni := "https://app.uniswap.org/swap"
	if name, ok := uniswapChain[chainID]; ok {
		uni += "?chain=" + name
	}
	out = append(out,
		Link{Name: "Uniswap", Category: CategoryDEX, URL: uni},
		Link{Name: "SushiSwap", Category: CategoryDEX, URL: "https://www.sushi.com/swap"},
		Link{Name: "Curve", Category: CategoryDEX, URL: "https://curve.fi"},
		Link{Name: "Balancer", Category: CategoryDEX, URL: "https://balancer.fi"},
		Link{Name: "Remix IDE", Category: CategoryTools, URL: "https://remix.ethereum.org"},
		Link{Name: "MetaMask", Category: CategoryWallet, URL: "https://metamask.io"},
	)
	return out
}

// ForAddress adds explorer pages for a wallet.
func ForAddress(chainID int64, addr common.Address) []Link {
	return append(Static(chainID),
		Link{Name: "Wallet on explorer", Category: CategoryExplorer, URL: ethereum.ExplorerAddressURL(chainID, addr)},
	)
}

func Tx(chainID int64, hash common.Hash) Link {
	return Link{Name: "Transaction", Category: CategoryExplorer, URL: ethereum.ExplorerTxURL(chainID, hash)}
}

func Token(chainID int64, token common.Address) Link {
	return Link{Name: "Token", Category: CategoryExplorer, URL: ethereum.ExplorerTokenURL(chainID, token)}
}
