package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"house_screens/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

var (
	errBadFrom      = errors.New("invalid 'from' time; use RFC3339 or YYYY-MM-DD")
	errBadTo        = errors.New("invalid 'to' time; use RFC3339 or YYYY-MM-DD")
	errInvertedSpan = errors.New("'from' must be <= 'to'")
)

// @Summary      Reconciliation log
// @Description  Events the reconciler recorded: corrective calls, ladder steps, convergence and sync errors.
// @Description  Bounds take RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'; a date-only 'to' covers the whole day.
// @Tags         logs
// @Produce      json
// @Param        from   query  string  false  "Lower bound, inclusive"  example(2026-10-01)
// @Param        to     query  string  false  "Upper bound, inclusive"  example(2026-10-19)
// @Param        type   query  string  false  "Event type, any case"  Enums(COPY_CONTENT,CREATE_SCREEN,ACTIVATE,REACTIVATE,REMOVE_ENVIRONMENT,PAIRING,ENVIRONMENT_NEEDED,CONVERGED,LADDER,EXHAUSTED,SYNC_ERROR,SETUP_RESET,REFRESH_SHOWN)
// @Param        house  query  string  false  "Only events of this house"
// @Success      200  {object}  map[string]interface{}  "count, events"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	f, err := logFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.services.EventLog.List(c.Request.Context(), f)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load logs", "logs_list_failed", err,
			"from", f.From, "to", f.To, "type", f.Type, "house_id", f.HouseID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// logFilterFromQuery turns the query string into a LogFilter. Type is
// upper-cased so "ladder" and "LADDER" select the same events.
func logFilterFromQuery(c *gin.Context) (service.LogFilter, error) {
	f := service.LogFilter{
		Type:    strings.ToUpper(strings.TrimSpace(c.Query("type"))),
		HouseID: strings.TrimSpace(c.Query("house")),
	}
	if qs := c.Query("from"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			return f, errBadFrom
		}
		f.From = t
	}
	if qs := c.Query("to"); qs != "" {
		t, err := parseQueryTime(qs)
		if err != nil {
			return f, errBadTo
		}
		if !strings.ContainsAny(qs, "T ") {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.To = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return f, errInvertedSpan
	}
	return f, nil
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
