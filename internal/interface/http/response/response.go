// Package response writes the JSON envelope every API endpoint returns.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Business codes carried in Response.Code. Zero is success; the rest are
// the HTTP status followed by two digits.
const (
	CodeOK             = 0
	CodeBadRequest     = 40000
	CodeNotFound       = 40400
	CodeConflict       = 40900
	CodePayloadTooBig  = 41300
	CodeReconciliation = 42200
	CodeRateLimited    = 42900
	CodeInternal       = 50000
	CodeUnavailable    = 50300
	CodeTimeout        = 50400
)

// Response is the envelope for every API response.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Details string `json:"details,omitempty"`
}

// ListData wraps list payloads with their length.
type ListData struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

// OK writes 200 with data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeOK, Message: "success", Data: data})
}

// Created writes 201 with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: CodeOK, Message: "success", Data: data})
}

// List writes 200 with items and their count.
func List(c *gin.Context, items any, total int) {
	OK(c, ListData{Items: items, Total: total})
}

// Error writes an error envelope and aborts the chain.
func Error(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, Response{Code: code, Message: message})
}

// ErrorWithDetails writes an error envelope with details and aborts the chain.
func ErrorWithDetails(c *gin.Context, httpStatus, code int, message, details string) {
	c.AbortWithStatusJSON(httpStatus, Response{Code: code, Message: message, Details: details})
}

// BadRequest writes 400.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

// NotFound writes 404.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

// InternalError writes 500 without leaking the cause.
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, "internal server error")
}
