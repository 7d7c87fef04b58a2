package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kurasuta/kurasuta-backend/internal/apierr"
)

// RespondError renders a failure. Client errors keep their message;
// anything else is hidden behind a generic 500 so store internals never
// leak to workers.
func RespondError(c *gin.Context, err error) {
	status := apierr.StatusOf(err)
	if apierr.IsClient(err) {
		c.JSON(status, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
