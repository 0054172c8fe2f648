package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/bookclub/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	messageInternal  = "Internal Server Error"
	messageForbidden = "You do not have access to this operation"
)

var errNotPositive = errors.New("must be a positive integer")

func statusFor(kind storage.Kind) int {
	switch kind {
	case storage.KindNotFound:
		return http.StatusNotFound
	case storage.KindBadRequest, storage.KindConstraintViolation:
		return http.StatusBadRequest
	case storage.KindForbidden:
		return http.StatusForbidden
	case storage.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondOK(c *gin.Context, message string, extra gin.H) {
	body := gin.H{
		"statusCode": http.StatusOK,
		"message":    message,
	}
	for key, value := range extra {
		body[key] = value
	}
	c.JSON(http.StatusOK, body)
}

func respondData(c *gin.Context, message string, data any, count int) {
	respondOK(c, message, gin.H{"data": data, "count": count})
}

func respondFailure(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"statusCode": status,
		"message":    message,
	})
}

// respondError writes a store failure. Storage failures never expose their cause.
func respondError(c *gin.Context, err error) {
	var classified *storage.Error
	if !errors.As(err, &classified) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"statusCode": http.StatusInternalServerError,
			"message":    messageInternal,
		})
		return
	}
	status := statusFor(classified.Kind())
	message := classified.Message()
	if classified.Kind() == storage.KindStorageFailure {
		message = classified.ClientMessage()
		if message == "" {
			message = messageInternal
		}
	}
	body := gin.H{
		"statusCode": status,
		"message":    message,
		"error":      classified.Code(),
	}
	if token := classified.Token(); token != "" {
		body["code"] = token
	}
	c.JSON(status, body)
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := parsePositiveID(c.Param(name))
	if err != nil {
		respondFailure(c, http.StatusBadRequest, fmt.Sprintf("%s %v", name, err))
		return 0, false
	}
	return id, true
}

func parsePositiveID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errNotPositive
	}
	return id, nil
}

// parseOptionalID reads an optional positive id from the query string.
func parseOptionalID(c *gin.Context, name string) (*int64, bool) {
	raw, present := c.GetQuery(name)
	if !present || strings.TrimSpace(raw) == "" {
		return nil, true
	}
	id, err := parsePositiveID(raw)
	if err != nil {
		respondFailure(c, http.StatusBadRequest, fmt.Sprintf("%s %v", name, err))
		return nil, false
	}
	return &id, true
}

// parsePage reads limit/offset; both must be non-negative integers when present.
func parsePage(c *gin.Context) (limit, offset *int, ok bool) {
	limit, ok = parseNonNegative(c, "limit")
	if !ok {
		return nil, nil, false
	}
	offset, ok = parseNonNegative(c, "offset")
	if !ok {
		return nil, nil, false
	}
	return limit, offset, true
}

func parseNonNegative(c *gin.Context, name string) (*int, bool) {
	raw, present := c.GetQuery(name)
	if !present || strings.TrimSpace(raw) == "" {
		return nil, true
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		respondFailure(c, http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
		return nil, false
	}
	return &value, true
}
