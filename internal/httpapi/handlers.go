package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"jambot/internal/jam"
	"jambot/internal/notifier"
	rtsup "jambot/internal/runtime/supervisor"
)

type handler struct {
	jams  Jams
	sched Schedules
	rt    Runtime
}

type occupantView struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type pollView struct {
	ID          string                  `json:"id"`
	ChatID      int64                   `json:"chat_id"`
	MessageID   int                     `json:"message_id"`
	ScheduledAt time.Time               `json:"scheduled_at"`
	Occupants   map[string]occupantView `json:"occupants"`
	FreeRoles   []string                `json:"free_roles"`
}

func viewOf(p jam.Poll) pollView {
	v := pollView{
		ID:          p.ID,
		ChatID:      p.ChatID,
		MessageID:   p.MessageID,
		ScheduledAt: p.ScheduledAt,
		Occupants:   map[string]occupantView{},
		FreeRoles:   []string{},
	}
	for r, o := range p.Occupants() {
		v.Occupants[r.String()] = occupantView{UserID: o.UserID, Name: o.Name}
	}
	for _, r := range p.FreeRoles() {
		v.FreeRoles = append(v.FreeRoles, r.String())
	}
	return v
}

func (h *handler) health(c *gin.Context) {
	polls, err := h.jams.Polls(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "polls": len(polls)})
}

func (h *handler) listJams(c *gin.Context) {
	polls, err := h.jams.Polls(c.Request.Context())
	if err != nil {
		fail(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	out := make([]pollView, 0, len(polls))
	for _, p := range polls {
		out = append(out, viewOf(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getJam(c *gin.Context) {
	p, ok, err := h.jams.Poll(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !ok {
		fail(c, http.StatusNotFound, "jam not found")
		return
	}
	c.JSON(http.StatusOK, viewOf(p))
}

func (h *handler) schedules(c *gin.Context) {
	c.JSON(http.StatusOK, h.sched.Snapshot())
}

type runtimeView struct {
	Supervisors map[string]rtsup.Snapshot `json:"supervisors"`
	Deliveries  []notifier.HistoryItem    `json:"deliveries"`
}

func (h *handler) runtime(c *gin.Context) {
	v := runtimeView{Supervisors: h.rt.Supervisors(), Deliveries: h.rt.Deliveries()}
	if v.Deliveries == nil {
		v.Deliveries = []notifier.HistoryItem{}
	}
	c.JSON(http.StatusOK, v)
}
