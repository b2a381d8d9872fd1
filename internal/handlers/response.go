package handlers

import "github.com/gin-gonic/gin"

// Error codes exposed on the wire.
const (
	CodeMalformedInput      = "malformed_input"
	CodeSimplifyUnavailable = "simplify_unavailable"
	CodeStorageUnavailable  = "storage_unavailable"
	CodeInternal            = "internal_error"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": apiError{Code: code, Message: message}})
}
