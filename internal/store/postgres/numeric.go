package postgres

import (
	"fmt"
	"math/big"
)

// Amounts live in NUMERIC(78,0) columns. We bind them as decimal strings and
// select them back with ::text casts, keeping the full uint256 range without
// float involvement.

func numericArg(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed numeric %q", s)
	}
	return v, nil
}
