package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

// GET /api/balances[?event_id=]
func (h *Handler) GetBalances(c *gin.Context) {
	eventID, ok := utils.QueryUUID(c, "event_id")
	if !ok {
		return
	}

	summary, err := h.Balances.GetBalances(c.Request.Context(), utils.GetCurrentUserID(c), eventID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", summary)
}

// GET /api/balances/suggestions[?event_id=]
func (h *Handler) GetSuggestions(c *gin.Context) {
	eventID, ok := utils.QueryUUID(c, "event_id")
	if !ok {
		return
	}
	if eventID != nil {
		// Only attendees may see an event's suggestions.
		if _, err := h.Events.Get(c.Request.Context(), utils.GetCurrentActor(c), *eventID); err != nil {
			utils.HandleError(c, err)
			return
		}
	}

	suggestions, err := h.Balances.Suggestions(c.Request.Context(), utils.GetCurrentUserID(c), eventID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", suggestions)
}

// GET /api/events/:id/balances
func (h *Handler) GetEventBalances(c *gin.Context) {
	eventID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}

	summary, err := h.Balances.EventBalances(c.Request.Context(), utils.GetCurrentActor(c), eventID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", summary)
}
