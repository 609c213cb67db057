package env

import (
	"os"
)

const (
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	UserSecretKey    = "USER_SECRET"
	AgentSecretKey   = "AGENT_SECRET"
	AuthRedisURL     = "AUTH_REDIS_URL"
	AuthRedisPass    = "AUTH_REDIS_PASS"
	NotifyRedisURL   = "NOTIFY_REDIS_URL"
	NotifyRedisPass  = "NOTIFY_REDIS_PASS"
	NotifyChannel    = "NOTIFY_CHANNEL"
	WebUrl           = "WEB_URL"
)

// Require panics when any of the listed variables is unset. Called once from
// main so package imports stay side-effect free in tests.
func Require(keys ...string) {
	for _, key := range keys {
		if os.Getenv(key) == "" {
			panic("env: required environment variable not set: " + key)
		}
	}
}

// RequiredKeys is the baseline set the chat server refuses to start without.
var RequiredKeys = []string{
	AWSRegion,
	AWSID,
	AWSSecret,
	// AWSToken,
	UserSecretKey,
	AgentSecretKey,
	AuthRedisURL,
	NotifyRedisURL,
	WebUrl,
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
