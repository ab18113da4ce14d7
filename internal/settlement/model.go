package settlement

// Transfer is a suggested payment that moves two members' balances toward zero
type Transfer struct {
	FromID      int64 `json:"from_id"`
	ToID        int64 `json:"to_id"`
	AmountCents int64 `json:"amount_cents"`
}

// Balance is a member's net position in a group: positive when the member is
// owed money, negative when they owe it
type Balance struct {
	MemberID int64  `json:"member_id"`
	Username string `json:"username"`
	NetCents int64  `json:"net_cents"`
}

// Summary is what a member is owed and owes across a group's pending debts
type Summary struct {
	GroupID        int64 `json:"group_id"`
	MemberID       int64 `json:"member_id"`
	ToReceiveCents int64 `json:"to_receive_cents"`
	ToPayCents     int64 `json:"to_pay_cents"`
}
