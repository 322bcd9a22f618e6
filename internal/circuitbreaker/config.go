package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// GetRedisConfig returns circuit breaker config for Redis operations
func GetRedisConfig() Config {
	return Config{
		MaxRequests:      getEnvUint32("CIRCUIT_BREAKER_REDIS_MAX_REQUESTS", 3),
		Interval:         getEnvDuration("CIRCUIT_BREAKER_REDIS_INTERVAL", 30*time.Second),
		Timeout:          getEnvDuration("CIRCUIT_BREAKER_REDIS_TIMEOUT", 5*time.Second),
		FailureThreshold: getEnvUint32("CIRCUIT_BREAKER_REDIS_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvUint32("CIRCUIT_BREAKER_REDIS_SUCCESS_THRESHOLD", 2),
	}
}

// GetHTTPConfig returns circuit breaker config for outbound HTTP calls
func GetHTTPConfig() Config {
	return Config{
		MaxRequests:      getEnvUint32("CIRCUIT_BREAKER_HTTP_MAX_REQUESTS", 5),
		Interval:         getEnvDuration("CIRCUIT_BREAKER_HTTP_INTERVAL", 60*time.Second),
		Timeout:          getEnvDuration("CIRCUIT_BREAKER_HTTP_TIMEOUT", 15*time.Second),
		FailureThreshold: getEnvUint32("CIRCUIT_BREAKER_HTTP_FAILURE_THRESHOLD", 5),
		SuccessThreshold: getEnvUint32("CIRCUIT_BREAKER_HTTP_SUCCESS_THRESHOLD", 3),
	}
}

// GetDatabaseConfig returns circuit breaker config for database operations
func GetDatabaseConfig() Config {
	return Config{
		MaxRequests:      getEnvUint32("CIRCUIT_BREAKER_DB_MAX_REQUESTS", 3),
		Interval:         getEnvDuration("CIRCUIT_BREAKER_DB_INTERVAL", 60*time.Second),
		Timeout:          getEnvDuration("CIRCUIT_BREAKER_DB_TIMEOUT", 10*time.Second),
		FailureThreshold: getEnvUint32("CIRCUIT_BREAKER_DB_FAILURE_THRESHOLD", 5),
		SuccessThreshold: getEnvUint32("CIRCUIT_BREAKER_DB_SUCCESS_THRESHOLD", 2),
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
