package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// Envelope is the body of every /api response.
type Envelope struct {
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
}

func (e Envelope) OK() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("empty data in %d response", e.StatusCode)
	}
	return json.Unmarshal(e.Data, v)
}

// Err returns nil for successful envelopes and an error carrying the status
// and message otherwise.
func (e Envelope) Err() error {
	if e.OK() {
		return nil
	}
	return &StatusError{StatusCode: e.StatusCode, Message: e.Message}
}

type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"data":       data,
		"statusCode": status,
		"message":    "OK",
	})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"data":       errorBody{Error: message},
		"statusCode": status,
		"message":    message,
	})
}
