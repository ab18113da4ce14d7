package settlement

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/splitledger/internal/debt"
	"github.com/fkhayef/splitledger/internal/group"
	"github.com/fkhayef/splitledger/pkg/middleware"
	"github.com/fkhayef/splitledger/pkg/response"
)

// Handler handles HTTP requests for settlement and balance reads
type Handler struct {
	service *Service
}

// NewHandler creates a new settlement handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for settlement endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/groups/{groupId}", func(r chi.Router) {
		r.Get("/", h.GetSettlements)
		r.Get("/balances", h.GetBalances)
		r.Get("/debts", h.ListGroupDebts)

		r.Get("/members/{memberId}/summary", h.GetBalanceSummary)
		r.Get("/members/{memberId}/debts", h.ListDebts)
		r.Get("/members/{memberId}/credits", h.ListCredits)
	})

	return r
}

func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, group.ErrGroupNotFound), errors.Is(err, group.ErrMemberNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrNotMember):
		response.Forbidden(w, err.Error())
	default:
		response.InternalError(w, fallback)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid "+name+" ID")
		return 0, false
	}
	return id, true
}

// GetSettlements handles GET /settlements/groups/{groupId}
// @Summary      Plan settlement transfers
// @Description  Compute the transfers that zero every member's net balance, largest debtor against largest creditor
// @Tags         settlements
// @Produce      json
// @Param        groupId path int true "Group ID"
// @Success      200 {object} response.APIResponse{data=PlanResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/groups/{groupId} [get]
func (h *Handler) GetSettlements(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUserID(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId", "group")
	if !ok {
		return
	}

	transfers, err := h.service.GetSettlements(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, err, "Failed to plan settlements")
		return
	}

	response.JSON(w, http.StatusOK, NewPlanResponse(groupID, transfers))
}

// GetBalances handles GET /settlements/groups/{groupId}/balances
// @Summary      Net balances
// @Description  Net balance of every member who owes or is owed, largest first
// @Tags         settlements
// @Produce      json
// @Param        groupId path int true "Group ID"
// @Success      200 {object} response.APIResponse{data=[]BalanceResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/groups/{groupId}/balances [get]
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUserID(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId", "group")
	if !ok {
		return
	}

	balances, err := h.service.GetBalances(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, err, "Failed to get net balances")
		return
	}

	balanceResponses := make([]*BalanceResponse, len(balances))
	for i, b := range balances {
		balanceResponses[i] = b.ToResponse()
	}

	response.JSON(w, http.StatusOK, balanceResponses)
}

// ListGroupDebts handles GET /settlements/groups/{groupId}/debts
// @Summary      List pending debts
// @Tags         settlements
// @Produce      json
// @Param        groupId path int true "Group ID"
// @Success      200 {object} response.APIResponse{data=[]debt.Response}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/groups/{groupId}/debts [get]
func (h *Handler) ListGroupDebts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUserID(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId", "group")
	if !ok {
		return
	}

	debts, err := h.service.ListGroupDebts(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, err, "Failed to list debts")
		return
	}

	response.JSON(w, http.StatusOK, debt.ToResponses(debts))
}

// GetBalanceSummary handles GET /settlements/groups/{groupId}/members/{memberId}/summary
// @Summary      Member balance summary
// @Description  Sum of pending debts owed to the member and owed by the member
// @Tags         settlements
// @Produce      json
// @Param        groupId path int true "Group ID"
// @Param        memberId path int true "Member user ID"
// @Success      200 {object} response.APIResponse{data=SummaryResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/groups/{groupId}/members/{memberId}/summary [get]
func (h *Handler) GetBalanceSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.RequireUserID(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId", "group")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "memberId", "member")
	if !ok {
		return
	}

	summary, err := h.service.GetBalanceSummary(r.Context(), groupID, userID, memberID)
	if err != nil {
		writeError(w, err, "Failed to get balance summary")
		return
	}

	response.JSON(w, http.StatusOK, summary.ToResponse())
}

// ListDebts handles GET /settlements/groups/{groupId}/members/{memberId}/debts
// @Summary      What a member owes
// @Tags         settlements
// @Produce      json
// @Param        groupId path int true "Group ID"
// @Param        memberId path int true "Member user ID"
// @Success      200 {object} response.APIResponse{data=[]debt.Response}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/groups/{groupId}/members/{memberId}/debts [get]
func (h *Handler) ListDebts(w http.ResponseWriter, r *http.Request) {
	h.listMemberDebts(w, r, h.service.ListDebts)
}

// ListCredits handles GET /settlements/groups/{groupId}/members/{memberId}/credits
// @Summary      What a member is owed
// @Tags         settlements
// @Produce      json
// @Param        groupId path int true "Group ID"
// @Param        memberId path int true "Member user ID"
// @Success      200 {object} response.APIResponse{data=[]debt.Response}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /settlements/groups/{groupId}/members/{memberId}/credits [get]
func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	h.listMemberDebts(w, r, h.service.ListCredits)
}

func (h *Handler) listMemberDebts(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, groupID, viewerID, memberID int64) ([]*debt.Debt, error)) {
	userID, ok := middleware.RequireUserID(w, r)
	if !ok {
		return
	}
	groupID, ok := pathID(w, r, "groupId", "group")
	if !ok {
		return
	}
	memberID, ok := pathID(w, r, "memberId", "member")
	if !ok {
		return
	}

	debts, err := list(r.Context(), groupID, userID, memberID)
	if err != nil {
		writeError(w, err, "Failed to list debts")
		return
	}

	response.JSON(w, http.StatusOK, debt.ToResponses(debts))
}
