package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"qrauth/codehub/internal/handler/middleware"
	"qrauth/codehub/internal/service"
	jwtpkg "qrauth/codehub/pkg/jwt"
	"qrauth/codehub/pkg/response"
)

var ErrNoClaims = errors.New("claims not found in context")

func getAccountIDFromContext(c *gin.Context) (uuid.UUID, error) {
	claimsVal, exists := c.Get(middleware.ContextKeyAccountClaims)
	if !exists {
		return uuid.Nil, ErrNoClaims
	}
	claims, ok := claimsVal.(*jwtpkg.Claims)
	if !ok {
		return uuid.Nil, ErrNoClaims
	}
	return claims.AccountID()
}

// accountAndID resolves the caller and the :id path parameter, writing the error response on failure.
func accountAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	accountID, err := getAccountIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid account context")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid qr code id")
		return uuid.Nil, uuid.Nil, false
	}
	return accountID, id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// writeServiceError maps service errors onto the response envelope.
func writeServiceError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, "qr code not found")
	case errors.Is(err, service.ErrQuotaExceeded):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrBatchBusy):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrDecryption):
		response.UnprocessableEntity(c, "payload could not be decrypted")
	default:
		response.InternalError(c, "internal server error")
	}
}
