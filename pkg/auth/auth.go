package auth

import (
	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
)

// AdminSecretKey guards the /admin routes.
var AdminSecretKey string

// JWTSecretKey verifies bearer tokens issued by the back office. main
// refuses to start without it.
var JWTSecretKey string

func init() {
	AdminSecretKey, _ = env.GetEnvString("ADMIN_SECRET_KEY")
	JWTSecretKey, _ = env.GetEnvString("JWT_SECRET_KEY")
}
