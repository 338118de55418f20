package handler

import (
	"net/http"

	"github.com/crowdfund-ledger/internal/api_gateway/middleware"
	"github.com/gin-gonic/gin"
)

// Response is the envelope every API endpoint answers with. Exactly one of
// Data and Error is set.
type Response struct {
	Data          any        `json:"data,omitempty"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

// ErrorInfo carries a stable machine-readable code next to a human message.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo describes the page returned by a paginated listing.
type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

// defaultErrors holds the code and fallback message used when a helper is
// given no specific message.
var defaultErrors = map[int]ErrorInfo{
	http.StatusBadRequest:          {Code: "BAD_REQUEST", Message: "Bad request"},
	http.StatusUnauthorized:        {Code: "UNAUTHORIZED", Message: "Unauthorized"},
	http.StatusForbidden:           {Code: "FORBIDDEN", Message: "Forbidden"},
	http.StatusNotFound:            {Code: "NOT_FOUND", Message: "Resource not found"},
	http.StatusInternalServerError: {Code: "INTERNAL_SERVER_ERROR", Message: "An internal server error occurred"},
}

func newMeta(page, perPage, totalItems int) *MetaInfo {
	totalPages := 0
	if perPage > 0 {
		totalPages = (totalItems + perPage - 1) / perPage
	}
	return &MetaInfo{
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		TotalItems: totalItems,
	}
}

func write(c *gin.Context, statusCode int, body *Response) {
	body.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, body)
}

func RespondWithData(c *gin.Context, statusCode int, data any) {
	write(c, statusCode, &Response{Data: data})
}

func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	write(c, statusCode, &Response{Error: &ErrorInfo{Code: code, Message: message}})
}

// RespondWithPaginatedData wraps one page of a listing together with its
// position in the full result set.
func RespondWithPaginatedData(c *gin.Context, statusCode int, data any, page, perPage, totalItems int) {
	write(c, statusCode, &Response{Data: data, Meta: newMeta(page, perPage, totalItems)})
}

func respondStatus(c *gin.Context, statusCode int, message string) {
	info := defaultErrors[statusCode]
	if message == "" {
		message = info.Message
	}
	RespondWithError(c, statusCode, info.Code, message)
}

func RespondOK(c *gin.Context, data any)       { RespondWithData(c, http.StatusOK, data) }
func RespondCreated(c *gin.Context, data any)  { RespondWithData(c, http.StatusCreated, data) }
func RespondAccepted(c *gin.Context, data any) { RespondWithData(c, http.StatusAccepted, data) }

func RespondBadRequest(c *gin.Context, message string) {
	respondStatus(c, http.StatusBadRequest, message)
}

func RespondUnauthorized(c *gin.Context, message string) {
	respondStatus(c, http.StatusUnauthorized, message)
}

func RespondForbidden(c *gin.Context, message string) {
	respondStatus(c, http.StatusForbidden, message)
}

func RespondNotFound(c *gin.Context, message string) {
	respondStatus(c, http.StatusNotFound, message)
}

// RespondUnprocessable reports input that parsed but broke a domain rule.
func RespondUnprocessable(c *gin.Context, code, message string) {
	RespondWithError(c, http.StatusUnprocessableEntity, code, message)
}

// RespondInternalError never leaks the underlying error to the caller.
func RespondInternalError(c *gin.Context) {
	respondStatus(c, http.StatusInternalServerError, "")
}
