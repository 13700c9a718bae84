package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetQRCode handles GET /api/qr/:profileId
func (h *Handler) GetQRCode(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	code, err := h.engine.QRCode(c.Request().Context(), a, c.Param("profileId"))
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "", echo.Map{"qrCode": code})
}

// MarkQRScanned handles POST /api/qr/:profileId/scanned
func (h *Handler) MarkQRScanned(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return fail(c, err, nil)
	}
	code, err := h.engine.MarkQRScanned(c.Request().Context(), a, c.Param("profileId"))
	if err != nil {
		return fail(c, err, nil)
	}
	return respond(c, http.StatusOK, "QR code marked as scanned", echo.Map{"qrCode": code})
}
