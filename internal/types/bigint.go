package types

import (
	"fmt"
	"math/big"
)

// BigInt wraps big.Int with JSON round-tripping as a quoted decimal string.
// On-chain amounts exceed float64 precision, so encoding them as JSON numbers
// would corrupt them for any consumer that parses numbers as doubles.
type BigInt struct {
	big.Int
}

// NewBigInt creates a BigInt from an int64.
func NewBigInt(x int64) *BigInt {
	b := new(BigInt)
	b.SetInt64(x)
	return b
}

// FromBig creates a BigInt from a big.Int. A nil input yields a zero value.
func FromBig(x *big.Int) *BigInt {
	b := new(BigInt)
	if x != nil {
		b.Set(x)
	}
	return b
}

// MarshalJSON encodes the value as a quoted decimal string.
func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

// UnmarshalJSON accepts both a quoted decimal string and a bare JSON number.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if _, ok := b.SetString(s, 10); !ok {
		return fmt.Errorf("invalid big integer %q", string(data))
	}
	return nil
}
