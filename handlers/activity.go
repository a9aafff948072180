package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

// GET /api/activity: the caller's own actions plus everything in events
// they attend.
func (h *Handler) GetActivity(c *gin.Context) {
	var pagination utils.PaginationQuery
	if err := c.ShouldBindQuery(&pagination); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	activities, err := h.Activity.Feed(c.Request.Context(), utils.GetCurrentActor(c), pagination.ToPage())
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", activities)
}
