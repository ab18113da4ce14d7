package split

import "errors"

// SplitType identifies how an expense is divided
type SplitType string

const (
	SplitTypeEven SplitType = "EVEN"
)

// Share is one member's portion of an expense, in cents
type Share struct {
	MemberID    int64 `json:"member_id"`
	AmountCents int64 `json:"amount_cents"`
}

// Strategy divides a total across a group's members
type Strategy interface {
	// Calculate returns one share per member; shares always sum to totalCents
	Calculate(totalCents int64, memberIDs []int64) ([]Share, error)

	// Type returns the type identifier for this strategy
	Type() SplitType
}

var (
	ErrEmptyGroup     = errors.New("cannot split across a group with no members")
	ErrNegativeAmount = errors.New("amount cannot be negative")
)

// Debtors drops the payer's own share; what remains is owed to the payer
func Debtors(payerID int64, shares []Share) []Share {
	owed := make([]Share, 0, len(shares))
	for _, s := range shares {
		if s.MemberID != payerID && s.AmountCents > 0 {
			owed = append(owed, s)
		}
	}
	return owed
}

// Total sums the shares
func Total(shares []Share) int64 {
	var sum int64
	for _, s := range shares {
		sum += s.AmountCents
	}
	return sum
}
