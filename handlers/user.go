package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Currency *string `json:"currency"`
}

type UpdateFCMTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// GET /api/users/me
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.Users.Get(c.Request.Context(), utils.GetCurrentUserID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", user.ToResponse())
}

// PUT /api/users/me
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	user, err := h.Users.UpdateProfile(c.Request.Context(), utils.GetCurrentActor(c), req.Name, req.Currency)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Profile updated", user.ToResponse())
}

// PUT /api/users/me/fcm-token
func (h *Handler) UpdateFCMToken(c *gin.Context) {
	var req UpdateFCMTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := h.Users.UpdateFCMToken(c.Request.Context(), utils.GetCurrentActor(c), req.Token); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "FCM token updated", nil)
}
