package middlewares

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Roon627/ITnVend-sub003/utils"
)

// SessionMiddleware copies the authenticated actor identity from request
// headers into the request context so audit fields can be stamped. The API
// layer in front of this service does the actual authentication.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if actorId := c.GetHeader("x-actor-id"); actorId != "" {
			ctx = utils.SetActorIdInContext(ctx, actorId)
		}
		if actorName := c.GetHeader("x-actor-name"); actorName != "" {
			ctx = utils.SetActorNameInContext(ctx, actorName)
		}
		if outletHeader := c.GetHeader("x-outlet-id"); outletHeader != "" {
			if outletId, err := strconv.Atoi(outletHeader); err == nil {
				ctx = utils.SetOutletIdInContext(ctx, outletId)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
