package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/services"
	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

// POST /api/events
func (h *Handler) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	in := services.CreateEventInput{Title: req.Title, Description: req.Description}
	var err error
	if in.StartsAt, err = parseDate("starts_at", req.StartsAt); err != nil {
		utils.HandleError(c, err)
		return
	}
	if in.EndsAt, err = parseDate("ends_at", req.EndsAt); err != nil {
		utils.HandleError(c, err)
		return
	}
	if in.Participants, err = parseIDs("participant", req.Participants); err != nil {
		utils.HandleError(c, err)
		return
	}

	event, err := h.Events.Create(c.Request.Context(), utils.GetCurrentActor(c), in)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Event created", event)
}

// GET /api/events
func (h *Handler) GetEvents(c *gin.Context) {
	events, err := h.Events.List(c.Request.Context(), utils.GetCurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", events)
}

// GET /api/events/:id
func (h *Handler) GetEvent(c *gin.Context) {
	eventID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}

	event, err := h.Events.Get(c.Request.Context(), utils.GetCurrentActor(c), eventID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", event)
}

// POST /api/events/:id/participants
func (h *Handler) AddEventParticipants(c *gin.Context) {
	eventID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req models.AddEventParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	ids, err := parseIDs("user_id", req.UserIDs)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	event, err := h.Events.AddParticipants(c.Request.Context(), utils.GetCurrentActor(c), eventID, ids)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Participants added", event)
}

// GET /api/events/:id/expenses
func (h *Handler) GetEventExpenses(c *gin.Context) {
	eventID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}
	h.listExpenses(c, &eventID)
}

// GET /api/events/:id/activity
func (h *Handler) GetEventActivity(c *gin.Context) {
	eventID, ok := utils.ParamUUID(c, "id")
	if !ok {
		return
	}

	var pagination utils.PaginationQuery
	if err := c.ShouldBindQuery(&pagination); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	activities, err := h.Activity.EventFeed(c.Request.Context(), utils.GetCurrentActor(c), eventID, pagination.ToPage())
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", activities)
}
