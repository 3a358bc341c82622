// Package handler contains the HTTP handlers.  Handlers bind and validate
// input, delegate to the service layer and translate engine error kinds
// onto transport status codes; they never touch seat state themselves.
package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/seatlab/ticketing/internal/engine"
)

// writeError maps an engine error onto its HTTP representation.  Unknown
// errors become an opaque 500 so internal details never leak to clients.
func writeError(c echo.Context, err error) error {
	kind := engine.KindOf(err)
	switch kind {
	case engine.KindInvalidInput, engine.KindStateMismatch:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case engine.KindNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case engine.KindForbidden:
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case engine.KindWrongEvent:
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case engine.KindUnavailable:
		return c.JSON(http.StatusConflict, echo.Map{
			"error":             err.Error(),
			"unavailable_seats": engine.LabelsOf(err),
		})
	case engine.KindRetryableConflict:
		return c.JSON(http.StatusConflict, echo.Map{
			"error": err.Error(),
			"retry": true,
		})
	case engine.KindInfraUnavailable:
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	return paramValue(c.Param(name))
}

func paramValue(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
