package signal

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DeviceKey = "device_token"

// DeviceMiddleware keeps one token per browser in the cookie session so
// connections opened from several tabs of the same browser can be told apart from different devices.
func DeviceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(DeviceKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(DeviceKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("save device session")
			}
		}
		c.Set(DeviceKey, token)
		c.Next()
	}
}
