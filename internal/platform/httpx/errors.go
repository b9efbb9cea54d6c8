package httpx

import (
	"net/http"

	"github.com/odyssey-erp/users-service/internal/shared"
)

// ErrorBody is the envelope written for every failed request.
type ErrorBody struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewErrorBody builds the envelope for err.
func NewErrorBody(err error) ErrorBody {
	appErr := shared.AsError(err)
	return ErrorBody{
		Code:    appErr.Status(),
		Error:   appErr.Name(),
		Message: appErr.Error(),
	}
}

// RespondError maps err to its status code and writes the envelope.
func RespondError(w http.ResponseWriter, err error) {
	body := NewErrorBody(err)
	JSON(w, body.Code, body)
}
