package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"qrauth/codehub/internal/export"
	"qrauth/codehub/internal/repository"
	"qrauth/codehub/internal/service"
	"qrauth/codehub/pkg/response"
)

const idempotencyHeader = "Idempotency-Key"

type QRCodeHandler struct {
	generator      service.GeneratorService
	codes          service.QRCodeService
	maxUploadBytes int64
}

func NewQRCodeHandler(generator service.GeneratorService, codes service.QRCodeService, maxUploadBytes int64) *QRCodeHandler {
	return &QRCodeHandler{generator: generator, codes: codes, maxUploadBytes: maxUploadBytes}
}

type IDsRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1,max=1000"`
}

type SetEnabledRequest struct {
	IDs     []uuid.UUID `json:"ids" binding:"required,min=1,max=1000"`
	Enabled *bool       `json:"enabled" binding:"required"`
}

type PrintRequest struct {
	IDs    []uuid.UUID `json:"ids" binding:"required,min=1,max=1000"`
	Format string      `json:"format" binding:"omitempty,oneof=html pdf"`
	Title  string      `json:"title" binding:"max=128"`
}

// Generate creates a batch from a JSON request.
func (h *QRCodeHandler) Generate(c *gin.Context) {
	accountID, err := getAccountIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid account context")
		return
	}

	var req service.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	h.generate(c, accountID, req)
}

// Upload creates a batch from a CSV or plain-text list of product identifiers.
func (h *QRCodeHandler) Upload(c *gin.Context) {
	accountID, err := getAccountIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid account context")
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing or oversized upload file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable upload file")
		return
	}
	defer f.Close()

	products, err := export.ParseProductList(f)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rtl, _ := strconv.ParseBool(c.PostForm("direction_rtl"))
	h.generate(c, accountID, service.GenerateRequest{
		ProductIDs:      products,
		Template:        c.PostForm("template"),
		HeaderText:      c.PostForm("header_text"),
		InstructionText: c.PostForm("instruction_text"),
		WebsiteURL:      c.PostForm("website_url"),
		FooterText:      c.PostForm("footer_text"),
		DirectionRTL:    rtl,
		IdempotencyKey:  c.GetHeader(idempotencyHeader),
	})
}

func (h *QRCodeHandler) generate(c *gin.Context, accountID uuid.UUID, req service.GenerateRequest) {
	res, err := h.generator.Generate(c.Request.Context(), accountID, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if res.Replayed {
		response.Success(c, res)
		return
	}
	response.Created(c, res)
}

// List returns the caller's codes, newest first.
func (h *QRCodeHandler) List(c *gin.Context) {
	accountID, err := getAccountIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid account context")
		return
	}

	filter := repository.ListFilter{Query: c.Query("q")}
	if raw := c.Query("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(c, "enabled must be true or false")
			return
		}
		filter.Enabled = &enabled
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		response.BadRequest(c, "limit must be a number")
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		response.BadRequest(c, "offset must be a number")
		return
	}

	codes, err := h.codes.List(c.Request.Context(), accountID, filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, codes)
}

func (h *QRCodeHandler) Get(c *gin.Context) {
	accountID, id, ok := accountAndID(c)
	if !ok {
		return
	}
	code, err := h.codes.Get(c.Request.Context(), accountID, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, code)
}

func (h *QRCodeHandler) Update(c *gin.Context) {
	accountID, id, ok := accountAndID(c)
	if !ok {
		return
	}
	var req service.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	code, err := h.codes.Update(c.Request.Context(), accountID, id, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, code)
}

func (h *QRCodeHandler) Toggle(c *gin.Context) {
	accountID, id, ok := accountAndID(c)
	if !ok {
		return
	}
	code, err := h.codes.ToggleEnabled(c.Request.Context(), accountID, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, code)
}

// Image downloads the stored PNG.
func (h *QRCodeHandler) Image(c *gin.Context) {
	accountID, id, ok := accountAndID(c)
	if !ok {
		return
	}
	code, err := h.codes.Get(c.Request.Context(), accountID, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	png, err := export.DecodeDataURI(code.RenderedImage)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="qr-%s.png"`, code.DisplayNumber()))
	c.Data(http.StatusOK, "image/png", png)
}

// Product reveals the encrypted product identifier for audit.
func (h *QRCodeHandler) Product(c *gin.Context) {
	accountID, id, ok := accountAndID(c)
	if !ok {
		return
	}
	product, err := h.codes.RevealProduct(c.Request.Context(), accountID, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "product_id": product})
}

func (h *QRCodeHandler) Delete(c *gin.Context) {
	accountID, id, ok := accountAndID(c)
	if !ok {
		return
	}
	res, err := h.codes.Delete(c.Request.Context(), accountID, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *QRCodeHandler) BulkDelete(c *gin.Context) {
	accountID, err := getAccountIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid account context")
		return
	}
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	res, err := h.codes.DeleteMany(c.Request.Context(), accountID, req.IDs)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *QRCodeHandler) BulkEnable(c *gin.Context) {
	accountID, err := getAccountIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid account context")
		return
	}
	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	results, err := h.codes.SetEnabledMany(c.Request.Context(), accountID, req.IDs, *req.Enabled)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, results)
}

// Print renders a label sheet for the requested codes as HTML or PDF.
func (h *QRCodeHandler) Print(c *gin.Context) {
	accountID, err := getAccountIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid account context")
		return
	}
	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	codes, missing, err := h.codes.GetMany(c.Request.Context(), accountID, req.IDs)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if len(missing) > 0 {
		ids := make([]string, len(missing))
		for i, m := range missing {
			ids[i] = m.ID.String()
		}
		response.NotFound(c, "qr codes not found: "+strings.Join(ids, ", "))
		return
	}

	var buf bytes.Buffer
	if req.Format == "pdf" {
		if err := export.PrintPDF(&buf, codes); err != nil {
			writeServiceError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="qr-codes.pdf"`)
		c.Data(http.StatusOK, "application/pdf", buf.Bytes())
		return
	}

	title := req.Title
	if title == "" {
		title = "QR codes"
	}
	if err := export.PrintHTML(&buf, title, codes); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// Usage returns the caller's ledger.
func (h *QRCodeHandler) Usage(c *gin.Context) {
	accountID, err := getAccountIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid account context")
		return
	}
	usage, err := h.codes.Usage(c.Request.Context(), accountID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, usage)
}
