package split

import (
	"slices"
)

// EvenStrategy divides a total equally. Members are ordered by id and the
// leftover cents go one each to the lowest ids.
type EvenStrategy struct{}

// Type returns the split type identifier
func (s *EvenStrategy) Type() SplitType {
	return SplitTypeEven
}

// Calculate splits totalCents across memberIDs
func (s *EvenStrategy) Calculate(totalCents int64, memberIDs []int64) ([]Share, error) {
	return Even(totalCents, memberIDs)
}

// Even computes base = total / n and hands base+1 to the first total % n
// members in ascending id order. Duplicate ids are counted once.
func Even(totalCents int64, memberIDs []int64) ([]Share, error) {
	if totalCents < 0 {
		return nil, ErrNegativeAmount
	}

	members := slices.Clone(memberIDs)
	slices.Sort(members)
	members = slices.Compact(members)

	n := int64(len(members))
	if n == 0 {
		return nil, ErrEmptyGroup
	}

	base := totalCents / n
	remainder := totalCents % n

	shares := make([]Share, n)
	for i, id := range members {
		amount := base
		if int64(i) < remainder {
			amount++
		}
		shares[i] = Share{MemberID: id, AmountCents: amount}
	}
	return shares, nil
}
