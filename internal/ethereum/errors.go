package ethereum

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrRPC wraps transport and node failures.
	ErrRPC = errors.New("rpc error")

	// ErrExecutionReverted is returned when an eth_call or gas estimate reverts.
	ErrExecutionReverted = errors.New("execution reverted")

	// ErrContractCall is returned when the target does not behave like the
	// contract we expected (no code, revert on a view, undecodable result).
	ErrContractCall = errors.New("contract call failed")

	// ErrTransactionReverted is returned for a mined transaction with status 0,
	// or one whose pre-flight estimate already reverts.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrTimedOut is returned when a confirmation wait exceeds its deadline.
	// The transaction may still be mined later.
	ErrTimedOut = errors.New("timed out waiting for confirmation")
)

// JSON-RPC error code geth uses for reverts.
const revertErrorCode = 3

func isRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
