package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/movra/payout-service/internal/service"
)

// ErrorSource points at the offending part of the request document
type ErrorSource struct {
	Pointer string `json:"pointer"`
}

// ErrorItem is one entry of an error response
type ErrorItem struct {
	Field  string      `json:"field"`
	Detail string      `json:"detail"`
	Source ErrorSource `json:"source"`
	Status string      `json:"status"`
	Code   string      `json:"code"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Errors []ErrorItem `json:"errors"`
}

func newErrorItem(status int, field, detail, code string) ErrorItem {
	pointer := "/data"
	if field != service.NonFieldErrors {
		pointer = "/data/" + field
	}
	return ErrorItem{
		Field:  field,
		Detail: detail,
		Source: ErrorSource{Pointer: pointer},
		Status: strconv.Itoa(status),
		Code:   code,
	}
}

func abortWithError(c *gin.Context, status int, field, detail, code string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Errors: []ErrorItem{newErrorItem(status, field, detail, code)},
	})
}

func abortWithValidation(c *gin.Context, verr *service.ValidationError) {
	items := make([]ErrorItem, len(verr.Errors))
	for i, fe := range verr.Errors {
		items[i] = newErrorItem(http.StatusBadRequest, fe.Field, fe.Detail, fe.Code)
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Errors: items})
}

func abortNotFound(c *gin.Context) {
	abortWithError(c, http.StatusNotFound, service.NonFieldErrors, "Not found.", "not_found")
}

func abortInternal(c *gin.Context) {
	abortWithError(c, http.StatusInternalServerError, service.NonFieldErrors,
		"A server error occurred.", "error")
}
