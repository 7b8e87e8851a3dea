package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cory-johannsen/derby/internal/game/errs"
	"github.com/cory-johannsen/derby/internal/game/minigame"
	"github.com/cory-johannsen/derby/internal/gameserver"
)

type colorRequest struct {
	Amount int64 `json:"amount"`
}

type colorResponse struct {
	OK bool `json:"ok"`
	gameserver.ColorResult
}

type treeResponse struct {
	OK bool `json:"ok"`
	gameserver.TreeResult
}

// ColorRound handles POST /api/game/color/round.
func (h *Handler) ColorRound(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req colorRequest
	if err := bindJSON(c, &req, errs.InvalidWager); err != nil {
		return err
	}
	res, err := h.games.ColorRound(c.Request().Context(), caller, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, colorResponse{OK: true, ColorResult: res})
}

// TreeRound handles POST /api/game/tree/round.
func (h *Handler) TreeRound(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req minigame.TreeBet
	if err := bindJSON(c, &req, errs.InvalidWager); err != nil {
		return err
	}
	res, err := h.games.TreeRound(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, treeResponse{OK: true, TreeResult: res})
}
