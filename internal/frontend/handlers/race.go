package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cory-johannsen/derby/internal/game/errs"
	"github.com/cory-johannsen/derby/internal/gameserver"
)

type startRequest struct {
	Pick int   `json:"pick"`
	Bet  int64 `json:"bet"`
}

type startResponse struct {
	OK     bool   `json:"ok"`
	RaceID string `json:"raceId"`
	gameserver.StartResult
}

type actionRequest struct {
	RaceID string `json:"raceId"`
	Item   string `json:"item"`
	Target int    `json:"target"`
}

type actionResponse struct {
	OK bool `json:"ok"`
	gameserver.ApplyResult
}

type finishRequest struct {
	RaceID string `json:"raceId"`
}

type finishResponse struct {
	OK      bool `json:"ok"`
	Settled bool `json:"settled"`
	gameserver.SettlementResult
}

type raceResponse struct {
	OK bool `json:"ok"`
	gameserver.Snapshot
}

// bindJSON decodes the request body into v. A body that does not decode is
// reported as kind: InvalidWager for requests that carry a bet,
// PolicyViolation otherwise.
func bindJSON(c echo.Context, v any, kind errs.Kind) error {
	if err := c.Bind(v); err != nil {
		return errs.New(kind, "malformed request body")
	}
	return nil
}

// StartRace handles POST /api/game/horse/start.
func (h *Handler) StartRace(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req startRequest
	if err := bindJSON(c, &req, errs.InvalidWager); err != nil {
		return err
	}
	res, err := h.races.Start(c.Request().Context(), caller, req.Pick, req.Bet)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, startResponse{OK: true, RaceID: res.State.RaceID, StartResult: res})
}

// ApplyItem handles POST /api/game/horse/action.
func (h *Handler) ApplyItem(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req actionRequest
	if err := bindJSON(c, &req, errs.PolicyViolation); err != nil {
		return err
	}
	if req.RaceID == "" || req.Item == "" {
		return errs.New(errs.PolicyViolation, "raceId and item are required")
	}
	res, err := h.races.ApplyItem(c.Request().Context(), caller, req.RaceID, req.Item, req.Target)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, actionResponse{OK: true, ApplyResult: res})
}

// FinishRace handles POST /api/game/horse/finish.
func (h *Handler) FinishRace(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req finishRequest
	if err := bindJSON(c, &req, errs.PolicyViolation); err != nil {
		return err
	}
	if req.RaceID == "" {
		return errs.New(errs.PolicyViolation, "raceId is required")
	}
	res, err := h.races.Settle(c.Request().Context(), caller, req.RaceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, finishResponse{OK: true, Settled: true, SettlementResult: res})
}

// GetRace handles GET /api/game/horse/race/:id.
func (h *Handler) GetRace(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	snap, err := h.races.Get(c.Request().Context(), caller, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, raceResponse{OK: true, Snapshot: snap})
}
