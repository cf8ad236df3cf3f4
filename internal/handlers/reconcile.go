package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"house_screens/internal/gateway"
	"house_screens/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK       = "ok"
	statusAccepted = "accepted"

	errGetState     = "failed to load state"
	errRefreshShown = "failed to record refresh prompt"
	errHouseCreated = "failed to announce house"
	errBadForce     = "invalid 'force'; use true or false"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// runContext detaches a run from the client connection. A run ends on its
// own deadline or when a newer run supersedes it, never on a disconnect.
func runContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// runStatus maps a run or pairing error to an HTTP status.
func runStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if _, ok := gateway.AsNetworkError(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondOutcome writes a run outcome. Failed runs still carry their outcome.
func (h *Handler) respondOutcome(c *gin.Context, logKey string, payload any, err error) {
	code := runStatus(err)
	if err != nil {
		if h.log != nil {
			h.log.Warnw(logKey, "err", err, "status", code)
		}
		c.JSON(code, gin.H{"error": err.Error(), "result": payload})
		return
	}
	c.JSON(code, payload)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Run reconciliation
// @Description  Runs one reconciliation pass and returns its outcome. force=true bypasses the graph cache and clears a screen-setup failure.
// @Tags         reconcile
// @Produce      json
// @Param        force  query  bool  false  "Forced trigger"
// @Success      200  {object}  service.Outcome
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]interface{}  "superseded by a newer run"
// @Failure      502  {object}  map[string]interface{}  "backend call failed"
// @Router       /api/v1/reconcile [post]
// @Security     BearerAuth
func (h *Handler) reconcile(c *gin.Context) {
	force := false
	if s := c.Query("force"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBadForce})
			return
		}
		force = v
	}
	out, err := h.services.Reconciler.Reconcile(runContext(c), force)
	h.respondOutcome(c, "reconcile_request_failed", out, err)
}

// @Summary      Reset screen setup
// @Description  Forced trigger: clears a screen-setup failure and reconciles.
// @Tags         reconcile
// @Produce      json
// @Success      200  {object}  service.Outcome
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]interface{}
// @Router       /api/v1/setup/reset [post]
// @Security     BearerAuth
func (h *Handler) setupReset(c *gin.Context) {
	out, err := h.services.Reconciler.Reconcile(runContext(c), true)
	h.respondOutcome(c, "setup_reset_failed", out, err)
}

// @Summary      Reconciliation state
// @Tags         reconcile
// @Produce      json
// @Success      200  {object}  service.StateSnapshot
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Refresh prompt shown
// @Description  The UI reports that it displayed the refresh prompt.
// @Tags         reconcile
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/refresh/shown [post]
// @Security     BearerAuth
func (h *Handler) refreshShown(c *gin.Context) {
	if err := h.services.Monitoring.MarkRefreshShown(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errRefreshShown, "refresh_shown_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      House created
// @Description  Announces a freshly created house. Reconciliation follows after a short debounce.
// @Tags         houses
// @Produce      json
// @Param        id   path  string  true  "House id"
// @Success      202  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/houses/{id}/created [post]
// @Security     BearerAuth
func (h *Handler) houseCreated(c *gin.Context) {
	houseID := c.Param("id")
	if err := h.services.Pairing.AnnounceHouseCreated(c.Request.Context(), houseID); err != nil {
		h.logAndJSONError(c, http.StatusBadRequest, errHouseCreated, "house_created_failed", err, "house_id", houseID)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusAccepted, "house_id": houseID})
}

// @Summary      Pair environment
// @Description  Creates an environment with one screen in the house, then runs a forced reconciliation.
// @Tags         houses
// @Produce      json
// @Param        id   path  string  true  "House id"
// @Success      200  {object}  service.PairResult
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]interface{}
// @Router       /api/v1/houses/{id}/environments [post]
// @Security     BearerAuth
func (h *Handler) pairEnvironment(c *gin.Context) {
	res, err := h.services.Pairing.Pair(runContext(c), c.Param("id"))
	h.respondOutcome(c, "pairing_failed", res, err)
}
