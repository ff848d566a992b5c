package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/middleware"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/serializer"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
)

// writeErr maps a service error to its HTTP status.
func writeErr(c *gin.Context, err error) {
	switch service.Kind(err) {
	case service.ErrValidation:
		c.JSON(http.StatusBadRequest, serializer.ParamErr(err.Error(), nil))
	case service.ErrAuth:
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(err.Error()))
	case service.ErrPermission:
		c.JSON(http.StatusForbidden, serializer.Forbidden(err.Error()))
	case service.ErrNotFound:
		c.JSON(http.StatusNotFound, serializer.NotFound(err.Error()))
	case service.ErrInvalidTransition, service.ErrPrecondition:
		c.JSON(http.StatusConflict, serializer.Conflict(err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
	}
}

func caller(c *gin.Context) (*auth.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
		return nil, false
	}
	return id, true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid "+name, err))
		return 0, false
	}
	return v, true
}
