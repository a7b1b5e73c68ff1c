package rewards

import (
	"context"
	"fmt"
	"math"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// TokenSpec describes the utility token to create.
type TokenSpec struct {
	Name     string
	Symbol   string
	Decimals uint
	// InitialSupply in whole token units.
	InitialSupply uint64
	Memo          string
}

// CreateToken creates the fungible utility token with the operator as
// treasury and returns its token id.
func CreateToken(ctx context.Context, ledger interfaces.TransactionOrchestrator, spec TokenSpec) (string, error) {
	if spec.Name == "" || spec.Symbol == "" {
		return "", interfaces.NewError(interfaces.KindInvalidArgument, "token name and symbol are required", nil)
	}
	supply, ok := smallestUnits(spec.InitialSupply, spec.Decimals)
	if !ok {
		return "", interfaces.NewError(interfaces.KindInvalidArgument,
			fmt.Sprintf("initial supply of %d with %d decimals overflows the token amount", spec.InitialSupply, spec.Decimals), nil)
	}

	receipt, err := ledger.Submit(ctx, interfaces.OperatorUserID, interfaces.TokenCreate{
		Name:          spec.Name,
		Symbol:        spec.Symbol,
		Memo:          spec.Memo,
		Decimals:      spec.Decimals,
		InitialSupply: supply,
	})
	if err != nil {
		return "", err
	}
	return receipt.TokenID, nil
}

// smallestUnits converts whole to the token's smallest unit. Ledger amounts
// are int64.
func smallestUnits(whole uint64, decimals uint) (uint64, bool) {
	supply := whole
	for i := uint(0); i < decimals; i++ {
		if supply > math.MaxInt64/10 {
			return 0, false
		}
		supply *= 10
	}
	return supply, supply <= math.MaxInt64
}
