package settlement

import (
	"fmt"

	"github.com/fkhayef/splitledger/internal/money"
)

// TransferResponse represents one suggested payment
type TransferResponse struct {
	FromID      int64  `json:"from_id"`
	ToID        int64  `json:"to_id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
}

// PlanResponse represents the settlement plan of a group
type PlanResponse struct {
	GroupID   int64               `json:"group_id"`
	Transfers []*TransferResponse `json:"transfers"`
	Total     string              `json:"total"`
}

// SummaryResponse represents a member's balance summary in a group
type SummaryResponse struct {
	GroupID        int64  `json:"group_id"`
	MemberID       int64  `json:"member_id"`
	ToReceive      string `json:"to_receive"`
	ToPay          string `json:"to_pay"`
	ToReceiveCents int64  `json:"to_receive_cents"`
	ToPayCents     int64  `json:"to_pay_cents"`
}

// BalanceResponse represents a member's net balance in a group
type BalanceResponse struct {
	MemberID int64  `json:"member_id"`
	Username string `json:"username"`
	Net      string `json:"net"`
	NetCents int64  `json:"net_cents"`
	Message  string `json:"message"` // e.g. "alice is owed 50.00"
}

// NewPlanResponse renders transfers in decimal form
func NewPlanResponse(groupID int64, transfers []Transfer) *PlanResponse {
	resp := &PlanResponse{
		GroupID:   groupID,
		Transfers: make([]*TransferResponse, len(transfers)),
	}

	var total int64
	for i, t := range transfers {
		resp.Transfers[i] = &TransferResponse{
			FromID:      t.FromID,
			ToID:        t.ToID,
			Amount:      money.Format(t.AmountCents),
			AmountCents: t.AmountCents,
		}
		total += t.AmountCents
	}
	resp.Total = money.Format(total)
	return resp
}

// ToResponse converts a Summary to a SummaryResponse DTO
func (s *Summary) ToResponse() *SummaryResponse {
	return &SummaryResponse{
		GroupID:        s.GroupID,
		MemberID:       s.MemberID,
		ToReceive:      money.Format(s.ToReceiveCents),
		ToPay:          money.Format(s.ToPayCents),
		ToReceiveCents: s.ToReceiveCents,
		ToPayCents:     s.ToPayCents,
	}
}

// ToResponse converts a Balance to a BalanceResponse DTO
func (b *Balance) ToResponse() *BalanceResponse {
	resp := &BalanceResponse{
		MemberID: b.MemberID,
		Username: b.Username,
		Net:      money.Format(b.NetCents),
		NetCents: b.NetCents,
	}
	if b.NetCents > 0 {
		resp.Message = fmt.Sprintf("%s is owed %s", b.Username, money.Format(b.NetCents))
	} else {
		resp.Message = fmt.Sprintf("%s owes %s", b.Username, money.Format(-b.NetCents))
	}
	return resp
}
