package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/splitledger/internal/debt"
	"github.com/fkhayef/splitledger/internal/expense/split"
	"github.com/fkhayef/splitledger/internal/money"
)

// CreateExpenseRequest represents the request to create an expense. The
// amount is split evenly across the group's joined members.
type CreateExpenseRequest struct {
	GroupID     int64           `json:"group_id" validate:"required,gt=0"`
	PayerID     int64           `json:"payer_id,omitempty" validate:"omitempty,gt=0"`
	Description string          `json:"description" validate:"required,min=1,max=255"`
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"100.00"`
}

// UpdateExpenseRequest represents the request to change an expense's amount
type UpdateExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"90.00"`
	Description *string         `json:"description,omitempty" validate:"omitempty,min=1,max=255"`
}

// ExpenseResponse represents the response for an expense
type ExpenseResponse struct {
	ID            int64            `json:"id"`
	GroupID       int64            `json:"group_id"`
	PayerID       int64            `json:"payer_id"`
	PayerUsername string           `json:"payer_username,omitempty"`
	Description   string           `json:"description"`
	Amount        string           `json:"amount"`
	AmountCents   int64            `json:"amount_cents"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
	Shares        []*ShareResponse `json:"shares,omitempty"`
	Debts         []*debt.Response `json:"debts,omitempty"`
}

// ShareResponse is what one member owes the payer for an expense
type ShareResponse struct {
	MemberID    int64  `json:"member_id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
}

// ToResponse converts an Expense model to an ExpenseResponse DTO
func (e *Expense) ToResponse() *ExpenseResponse {
	return &ExpenseResponse{
		ID:            e.ID,
		GroupID:       e.GroupID,
		PayerID:       e.PayerID,
		PayerUsername: e.PayerUsername,
		Description:   e.Description,
		Amount:        money.Format(e.AmountCents),
		AmountCents:   e.AmountCents,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ToResponse converts an expense with its shares and debts
func (r *ExpenseWithShares) ToResponse() *ExpenseResponse {
	resp := r.Expense.ToResponse()
	resp.Shares = make([]*ShareResponse, len(r.Shares))
	for i, s := range r.Shares {
		resp.Shares[i] = shareResponse(s)
	}
	if r.Debts != nil {
		resp.Debts = debt.ToResponses(r.Debts)
	}
	return resp
}

func shareResponse(s split.Share) *ShareResponse {
	return &ShareResponse{
		MemberID:    s.MemberID,
		Amount:      money.Format(s.AmountCents),
		AmountCents: s.AmountCents,
	}
}
