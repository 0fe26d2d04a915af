package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"qrauth/codehub/internal/service"
	"qrauth/codehub/pkg/response"
)

// AdminHandler manages per-account usage limits.
type AdminHandler struct {
	codes service.QRCodeService
}

func NewAdminHandler(codes service.QRCodeService) *AdminHandler {
	return &AdminHandler{codes: codes}
}

// GetAccountUsage returns the ledger of any account.
func (h *AdminHandler) GetAccountUsage(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("account_id"))
	if err != nil {
		response.BadRequest(c, "invalid account id")
		return
	}
	usage, err := h.codes.Usage(c.Request.Context(), accountID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, usage)
}

// SetAccountLimits overrides the plan limits of an account.
func (h *AdminHandler) SetAccountLimits(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("account_id"))
	if err != nil {
		response.BadRequest(c, "invalid account id")
		return
	}

	var req service.LimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	usage, err := h.codes.SetLimits(c.Request.Context(), accountID, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, usage)
}
