package main

import (
	"errors"
	"net/http"

	"github.com/go-fuego/fuego"
	"github.com/wantamink/pledgeservice/internal/tip"
	"go.uber.org/zap"
)

// SolanaTip describes the tip transfer the browser wallet should sign.
func (r *routes) SolanaTip(c *fuego.ContextWithBody[tip.Request]) (any, error) {
	body, err := c.Body()
	if err != nil {
		return errorResponse(c.Response(), http.StatusBadRequest, "invalid request body")
	}

	resp, err := r.Tips.Build(body)
	switch {
	case err == nil:
	case errors.Is(err, tip.ErrMissingSender),
		errors.Is(err, tip.ErrInvalidSender),
		errors.Is(err, tip.ErrInvalidAmount),
		errors.Is(err, tip.ErrInvalidPercentage),
		errors.Is(err, tip.ErrTipTooSmall):
		return errorResponse(c.Response(), http.StatusBadRequest, err.Error())
	default:
		r.Logger.Error("failed to build tip transaction", zap.Error(err))
		return errorResponse(c.Response(), http.StatusInternalServerError, "internal error")
	}

	r.Logger.Info("tip transaction created",
		zap.Int64("tip_lamports", resp.TipAmount),
		zap.String("sender", body.SenderPublicKey),
		zap.String("wallet", r.Tips.Wallet()))
	writeStatus(c.Response(), http.StatusOK)
	return resp, nil
}
