package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/services"
	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

// POST /api/settlements
func (h *Handler) CreateSettlement(c *gin.Context) {
	var req models.CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	in := services.CreateSettlementInput{Amount: req.Amount, Currency: req.Currency, Notes: req.Notes}
	to, err := parseOptionalID("to_user_id", req.ToUserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if to == nil {
		utils.BadRequest(c, "to_user_id is required")
		return
	}
	in.ToUserID = *to
	from, err := parseOptionalID("from_user_id", req.FromUserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if from != nil {
		in.FromUserID = *from
	}
	if in.EventID, err = parseOptionalID("event_id", req.EventID); err != nil {
		utils.HandleError(c, err)
		return
	}

	settlement, err := h.Settlements.Create(c.Request.Context(), utils.GetCurrentActor(c), in)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Settlement recorded", h.settlementResponse(c, settlement))
}

// GET /api/settlements[?user_id=&event_id=&settled=]
func (h *Handler) GetSettlements(c *gin.Context) {
	var q services.SettlementQuery
	var ok bool
	if q.UserID, ok = utils.QueryUUID(c, "user_id"); !ok {
		return
	}
	if q.EventID, ok = utils.QueryUUID(c, "event_id"); !ok {
		return
	}
	if raw := c.Query("settled"); raw != "" {
		settled, err := strconv.ParseBool(raw)
		if err != nil {
			utils.BadRequest(c, "Invalid settled")
			return
		}
		q.Settled = &settled
	}

	var pagination utils.PaginationQuery
	if err := c.ShouldBindQuery(&pagination); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	q.Page = pagination.ToPage()

	settlements, total, err := h.Settlements.List(c.Request.Context(), utils.GetCurrentActor(c), q)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	var ids []uuid.UUID
	for _, s := range settlements {
		ids = append(ids, s.FromUserID, s.ToUserID)
	}
	names := h.names(c.Request.Context(), ids...)
	items := make([]models.SettlementResponse, 0, len(settlements))
	for i := range settlements {
		items = append(items, settlements[i].ToResponse(names))
	}
	utils.SuccessResponse(c, http.StatusOK, "", utils.PageResponse{
		Items: items,
		Page:  q.Page.Page,
		Limit: q.Page.Limit,
		Total: total,
	})
}

// POST /api/settlements/:id/settle
func (h *Handler) MarkSettled(c *gin.Context) {
	settlementID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}

	settlement, err := h.Settlements.MarkSettled(c.Request.Context(), utils.GetCurrentActor(c), settlementID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Settlement confirmed", h.settlementResponse(c, settlement))
}

func (h *Handler) settlementResponse(c *gin.Context, s *models.Settlement) models.SettlementResponse {
	return s.ToResponse(h.names(c.Request.Context(), s.FromUserID, s.ToUserID))
}
