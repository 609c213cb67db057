package jwt

import (
	"time"

	"support-chat-backend/internal/env"

	"github.com/go-redis/redis/v8"
)

const RefreshTokenTTL = 24 * 30 * time.Hour

const (
	RoleUser Role = iota
	RoleAgent
)

var RoleSecrets = map[Role]string{}

var RedisClient *redis.Client

func init() {
	RoleSecrets[RoleUser] = env.Get(env.UserSecretKey)
	RoleSecrets[RoleAgent] = env.Get(env.AgentSecretKey)

	RedisClient = redis.NewClient(&redis.Options{
		Addr:     env.Get(env.AuthRedisURL),
		Password: env.Get(env.AuthRedisPass),
		DB:       0,
	})
}

// SetRoleSecret overrides a signing secret. Tests use this instead of
// environment wiring.
func SetRoleSecret(role Role, secret string) {
	RoleSecrets[role] = secret
}
