// internal/analysislock/middleware.go
package analysislock

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LeaseContextKey é a chave do *Lease no gin.Context.
const LeaseContextKey = "analysis_lease"

// Middleware trava a aula lida do parâmetro de rota antes do handler e libera
// depois dele, mesmo se o handler falhar ou entrar em pânico.
func Middleware(m *Manager, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		lessonID := c.Param(param)
		if lessonID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "lesson id is required",
			})
			return
		}

		lease, err := m.Acquire(lessonID)
		if err != nil {
			var rej *Rejection
			if errors.As(err, &rej) {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"success":   false,
					"error":     rej.Unwrap().Error(),
					"code":      rej.Code,
					"lesson_id": lessonID,
					"wait_ms":   rej.Wait.Milliseconds(),
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		defer lease.Release()

		c.Set(LeaseContextKey, lease)
		c.Next()
	}
}

// LeaseFrom devolve o lease que o Middleware pôs no contexto.
func LeaseFrom(c *gin.Context) (*Lease, bool) {
	v, ok := c.Get(LeaseContextKey)
	if !ok {
		return nil, false
	}
	l, ok := v.(*Lease)
	return l, ok
}
