package errors

import (
	"fmt"
	"net/http"
)

// Code ties a business code to its HTTP status and default message.
type Code struct {
	Code    int
	Status  int
	Message string
}

const (
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrConflict        = 1005
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008
	ErrRequestTooLarge = 1009

	// File lifecycle and conversion errors (6000-6999)
	ErrFileNotFound           = 6000
	ErrSchemaMismatch         = 6001
	ErrInvalidIdentifier      = 6002
	ErrPathOutsideAllowedRoot = 6003
	ErrInvalidFilename        = 6004
	ErrNoConverterAvailable   = 6005
	ErrConversionFailed       = 6006
	ErrInvalidSettingsValue   = 6007
	ErrStorageFailed          = 6008
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},
	ErrRequestTooLarge: {ErrRequestTooLarge, http.StatusRequestEntityTooLarge, "Request entity too large"},

	ErrFileNotFound:           {ErrFileNotFound, http.StatusNotFound, "File not found"},
	ErrSchemaMismatch:         {ErrSchemaMismatch, http.StatusBadRequest, "Metadata does not match the expected schema"},
	ErrInvalidIdentifier:      {ErrInvalidIdentifier, http.StatusBadRequest, "Invalid identifier"},
	ErrPathOutsideAllowedRoot: {ErrPathOutsideAllowedRoot, http.StatusForbidden, "Path outside allowed storage roots"},
	ErrInvalidFilename:        {ErrInvalidFilename, http.StatusBadRequest, "Invalid stored filename"},
	ErrNoConverterAvailable:   {ErrNoConverterAvailable, http.StatusBadRequest, "No converter available"},
	ErrConversionFailed:       {ErrConversionFailed, http.StatusInternalServerError, "Conversion failed"},
	ErrInvalidSettingsValue:   {ErrInvalidSettingsValue, http.StatusBadRequest, "Invalid settings value"},
	ErrStorageFailed:          {ErrStorageFailed, http.StatusInternalServerError, "Storage operation failed"},
}

// GetCode returns the Code for code, falling back to ErrInternalServer.
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError reports whether code maps to a 4xx status.
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether code maps to a 5xx status.
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError renders "<message>: <detail>" or just the message.
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
