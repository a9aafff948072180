package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/services"
	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

// POST /api/expenses
func (h *Handler) CreateExpense(c *gin.Context) {
	var req models.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	in, err := createExpenseInput(req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	expense, err := h.Expenses.CreateExpense(c.Request.Context(), utils.GetCurrentActor(c), in)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Expense added", h.expenseResponse(c, expense))
}

func createExpenseInput(req models.CreateExpenseRequest) (services.CreateExpenseInput, error) {
	in := services.CreateExpenseInput{
		Title:    req.Title,
		Amount:   req.Amount,
		Currency: req.Currency,
		Category: req.Category,
		Notes:    req.Notes,
	}
	var err error
	if in.SplitMode, err = ledger.ParseSplitMode(req.SplitMode); err != nil {
		return in, err
	}
	if in.Status, err = models.ParseExpenseStatus(req.Status); err != nil {
		return in, err
	}
	payer, err := parseOptionalID("paid_by", req.PaidBy)
	if err != nil {
		return in, err
	}
	if payer != nil {
		in.PaidBy = *payer
	}
	if in.EventID, err = parseOptionalID("event_id", req.EventID); err != nil {
		return in, err
	}
	if in.Participants, err = parseIDs("participant", req.Participants); err != nil {
		return in, err
	}
	if in.Splits, err = splitValues(req.Splits); err != nil {
		return in, err
	}
	return in, nil
}

func splitValues(splits []models.SplitInput) ([]services.SplitValue, error) {
	if splits == nil {
		return nil, nil
	}
	out := make([]services.SplitValue, 0, len(splits))
	for _, s := range splits {
		id, err := uuid.Parse(s.UserID)
		if err != nil {
			return nil, ledger.Validation("parse request", "invalid split user_id %q", s.UserID)
		}
		out = append(out, services.SplitValue{UserID: id, Value: s.Value})
	}
	return out, nil
}

// GET /api/expenses[?event_id=]
func (h *Handler) GetExpenses(c *gin.Context) {
	eventID, ok := utils.QueryUUID(c, "event_id")
	if !ok {
		return
	}
	h.listExpenses(c, eventID)
}

func (h *Handler) listExpenses(c *gin.Context, eventID *uuid.UUID) {
	var pagination utils.PaginationQuery
	if err := c.ShouldBindQuery(&pagination); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	page := pagination.ToPage()

	expenses, total, err := h.Expenses.List(c.Request.Context(), utils.GetCurrentActor(c), eventID, page)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	var ids []uuid.UUID
	for _, e := range expenses {
		ids = append(ids, e.PaidBy)
		for _, p := range e.Participants {
			ids = append(ids, p.UserID)
		}
	}
	names := h.names(c.Request.Context(), ids...)

	items := make([]models.ExpenseResponse, 0, len(expenses))
	for i := range expenses {
		items = append(items, expenses[i].ToResponse(names))
	}
	utils.SuccessResponse(c, http.StatusOK, "", utils.PageResponse{
		Items: items,
		Page:  page.Page,
		Limit: page.Limit,
		Total: total,
	})
}

// GET /api/expenses/:id
func (h *Handler) GetExpense(c *gin.Context) {
	expenseID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}

	expense, err := h.Expenses.Get(c.Request.Context(), utils.GetCurrentActor(c), expenseID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", h.expenseResponse(c, expense))
}

// PUT /api/expenses/:id
func (h *Handler) UpdateExpense(c *gin.Context) {
	expenseID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	in, err := updateExpenseInput(req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	expense, err := h.Expenses.Update(c.Request.Context(), utils.GetCurrentActor(c), expenseID, in)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Expense updated", h.expenseResponse(c, expense))
}

func updateExpenseInput(req models.UpdateExpenseRequest) (services.UpdateExpenseInput, error) {
	in := services.UpdateExpenseInput{
		Title:    req.Title,
		Amount:   req.Amount,
		Currency: req.Currency,
		Category: req.Category,
		Notes:    req.Notes,
	}
	if req.SplitMode != nil {
		mode, err := ledger.ParseSplitMode(*req.SplitMode)
		if err != nil {
			return in, err
		}
		in.SplitMode = &mode
	}
	if req.Status != nil {
		status, err := models.ParseExpenseStatus(*req.Status)
		if err != nil {
			return in, err
		}
		in.Status = &status
	}
	var err error
	if in.Participants, err = parseIDs("participant", req.Participants); err != nil {
		return in, err
	}
	if in.Splits, err = splitValues(req.Splits); err != nil {
		return in, err
	}
	return in, nil
}

// DELETE /api/expenses/:id
func (h *Handler) DeleteExpense(c *gin.Context) {
	expenseID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.Expenses.Delete(c.Request.Context(), utils.GetCurrentActor(c), expenseID); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Expense deleted", nil)
}

// POST /api/expenses/:id/participants/:uid/paid
func (h *Handler) MarkParticipantPaid(c *gin.Context) {
	expenseID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := utils.ParamUUID(c, "uid")
	if !ok {
		return
	}

	expense, err := h.Expenses.MarkParticipantPaid(c.Request.Context(), utils.GetCurrentActor(c), expenseID, userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Share marked as paid", h.expenseResponse(c, expense))
}

func (h *Handler) expenseResponse(c *gin.Context, e *models.Expense) models.ExpenseResponse {
	ids := []uuid.UUID{e.PaidBy}
	for _, p := range e.Participants {
		ids = append(ids, p.UserID)
	}
	return e.ToResponse(h.names(c.Request.Context(), ids...))
}
