package ethereum

import "github.com/ethereum/go-ethereum/common"

var explorerBase = map[int64]string{
	1:        "https://etherscan.io",
	11155111: "https://sepolia.etherscan.io",
	10:       "https://optimistic.etherscan.io",
	137:      "https://polygonscan.com",
	8453:     "https://basescan.org",
	42161:    "https://arbiscan.io",
}

// ExplorerBase returns the block explorer root for chainID, defaulting to
// Etherscan mainnet for chains we do not know.
func ExplorerBase(chainID int64) string {
	if base, ok := explorerBase[chainID]; ok {
		return base
	}
	return explorerBase[1]
}

func ExplorerTxURL(chainID int64, hash common.Hash) string {
	return ExplorerBase(chainID) + "/tx/" + hash.Hex()
}

func ExplorerAddressURL(chainID int64, addr common.Address) string {
	return ExplorerBase(chainID) + "/address/" + addr.Hex()
}

func ExplorerTokenURL(chainID int64, token common.Address) string {
	return ExplorerBase(chainID) + "/token/" + token.Hex()
}
