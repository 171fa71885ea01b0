package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Title       string `json:"title"`
	Date        string `json:"date" binding:"required"`
	Time        string `json:"time" binding:"required"`
}

type rescheduleRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	EventName   string `json:"eventName" binding:"required"`
	NewDate     string `json:"newDate" binding:"required"`
	NewTime     string `json:"newTime" binding:"required"`
}

// eventRequest identifies an event by title, date and HH:MM start.
type eventRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	EventName   string `json:"eventName" binding:"required"`
	Date        string `json:"date" binding:"required"`
	Time        string `json:"time" binding:"required"`
}

func (h *Handler) webhookCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "phoneNumber, date & time are required")
		return
	}

	res, err := h.calendar.CreateEvent(c.Request.Context(), req.PhoneNumber, req.Title, req.Date, req.Time)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "created", "result": res})
}

func (h *Handler) webhookReschedule(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "phoneNumber, eventName, newDate & newTime are required")
		return
	}

	res, err := h.calendar.RescheduleEventByName(c.Request.Context(), req.PhoneNumber, req.EventName, req.NewDate, req.NewTime)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rescheduled", "result": res})
}

func (h *Handler) webhookCancel(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "phoneNumber, eventName, date & time are required")
		return
	}

	res, err := h.calendar.CancelEventByName(c.Request.Context(), req.PhoneNumber, req.EventName, req.Date, req.Time)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "result": res})
}

func (h *Handler) calendarRead(c *gin.Context) {
	phone := c.Query("phoneNumber")
	if phone == "" {
		h.badRequest(c, "phoneNumber is required")
		return
	}

	res, err := h.trigger.CurrentEvent(c.Request.Context(), phone)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "currentEvent": res})
}

func (h *Handler) calendarEvents(c *gin.Context) {
	phone := c.Query("phoneNumber")
	if phone == "" {
		h.badRequest(c, "phoneNumber is required")
		return
	}

	events, err := h.calendar.ReadEvents(c.Request.Context(), phone)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "events": events})
}

func (h *Handler) calendarReadByName(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "phoneNumber, eventName, date & time are required")
		return
	}

	event, err := h.calendar.ReadEventByName(c.Request.Context(), req.PhoneNumber, req.EventName, req.Date, req.Time)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "found", "event": event})
}
