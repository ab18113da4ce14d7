package expense_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/splitledger/internal/database/dbtest"
	"github.com/fkhayef/splitledger/internal/expense"
	"github.com/fkhayef/splitledger/pkg/middleware"
	"github.com/fkhayef/splitledger/pkg/response"
)

type envelope struct {
	Success bool                     `json:"success"`
	Data    *expense.ExpenseResponse `json:"data"`
	Error   *response.APIError       `json:"error"`
}

func TestHandler(t *testing.T) {
	f := newFixture(t)

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	c := dbtest.CreateUser(t, f.db, "c")
	outsider := dbtest.CreateUser(t, f.db, "outsider")
	groupID := dbtest.CreateGroup(t, f.db, "trip", a, b, c)

	router := middleware.TestUserMiddleware(expense.NewHandler(f.expenses).Routes())

	do := func(method, path string, userID int64, body string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-Test-User-ID", strconv.FormatInt(userID, 10))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var env envelope
		if rec.Body.Len() > 0 {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		}
		return rec, env
	}

	body := `{"group_id": ` + strconv.FormatInt(groupID, 10) + `, "description": "dinner", "amount": "100.00"}`
	rec, env := do(http.MethodPost, "/", a, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, env.Data)
	assert.Equal(t, "100.00", env.Data.Amount)
	require.Len(t, env.Data.Shares, 2)
	assert.Equal(t, "33.33", env.Data.Shares[0].Amount)
	id := strconv.FormatInt(env.Data.ID, 10)

	t.Run("invalid amount", func(t *testing.T) {
		body := `{"group_id": ` + strconv.FormatInt(groupID, 10) + `, "description": "bad", "amount": "1.234"}`
		rec, env := do(http.MethodPost, "/", a, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INVALID_AMOUNT", env.Error.Code)
	})

	t.Run("missing description", func(t *testing.T) {
		body := `{"group_id": ` + strconv.FormatInt(groupID, 10) + `, "amount": "1.00"}`
		rec, env := do(http.MethodPost, "/", a, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	})

	t.Run("get", func(t *testing.T) {
		rec, env := do(http.MethodGet, "/"+id, b, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, env.Data)
		assert.Len(t, env.Data.Debts, 2)

		rec, _ = do(http.MethodGet, "/9999", b, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("outsider cannot read", func(t *testing.T) {
		rec, env := do(http.MethodGet, "/"+id, outsider, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		require.NotNil(t, env.Error)

		rec, _ = do(http.MethodGet, "/group/"+strconv.FormatInt(groupID, 10), outsider, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("update by non payer", func(t *testing.T) {
		rec, _ := do(http.MethodPatch, "/"+id, b, `{"amount": "90.00"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("update", func(t *testing.T) {
		rec, env := do(http.MethodPatch, "/"+id, a, `{"amount": 90}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, env.Data)
		assert.Equal(t, int64(9000), env.Data.AmountCents)
	})

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/group/"+strconv.FormatInt(groupID, 10)+"?per_page=500", nil)
		req.Header.Set("X-Test-User-ID", strconv.FormatInt(c, 10))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var list struct {
			Data []*expense.ExpenseResponse `json:"data"`
			Meta *response.Meta             `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Len(t, list.Data, 1)
		assert.Equal(t, 20, list.Meta.PerPage)
	})

	t.Run("delete", func(t *testing.T) {
		rec, _ := do(http.MethodDelete, "/"+id, a, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, f.pending(t, groupID))
	})
}
