// internal/api/response.go
package api

import (
	"github.com/gin-gonic/gin"
)

// envelope é o formato comum de resposta: {success, data, message}.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	FromCache *bool       `json:"fromCache,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
}

func writeData(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

func writeError(c *gin.Context, status int, err error, message string) {
	env := envelope{Success: false, Message: message}
	if err != nil {
		env.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, env)
}
