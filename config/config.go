package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/radlab-io/authgate/pathauthz"
)

type Config struct {
	AuthSecret          string
	Issuer              string
	ServicePort         int
	GatewayPort         int
	ApiPort             int
	PolicyFile          string
	ControlPlaneUrl     *string
	IdentityProviderUrl *string
	DevMode             bool

	CookieName    string
	ApiPrefix     string
	LoginPath     string
	WaitingPath   string
	DashboardPath string

	CredentialValidity time.Duration
	VerifyTimeout      time.Duration
	CacheTTL           time.Duration
	UnverifiedCacheTTL time.Duration
	CacheSweepInterval time.Duration
	GuardThreshold     int
	GuardCooldown      time.Duration
}

func GetAppConfig() *Config {
	return &Config{
		AuthSecret:          getEnv("AUTH_SECRET"),
		Issuer:              getEnvOrDefault("CREDENTIAL_ISSUER", "authgate"),
		ServicePort:         getEnvAsInt("SERVICE_PORT"),
		GatewayPort:         getEnvAsInt("GATEWAY_PORT"),
		ApiPort:             getEnvAsInt("API_PORT"),
		PolicyFile:          getEnv("POLICY_FILE"),
		ControlPlaneUrl:     getOptionalEnv("CONTROL_PLANE_URL"),
		IdentityProviderUrl: getOptionalEnv("IDENTITY_PROVIDER_URL"),
		DevMode:             getEnvAsBoolOrDefault("DEV_MODE", false),
		CookieName:          getEnvOrDefault("AUTH_COOKIE_NAME", "authgate_token"),
		ApiPrefix:           getEnvOrDefault("API_PREFIX", "/api"),
		LoginPath:           getEnvOrDefault("LOGIN_PATH", "/auth/login"),
		WaitingPath:         getEnvOrDefault("WAITING_PATH", "/auth/waiting"),
		DashboardPath:       getEnvOrDefault("DASHBOARD_PATH", "/dashboard"),
		CredentialValidity:  getEnvAsDurationOrDefault("CREDENTIAL_VALIDITY", 24*time.Hour),
		VerifyTimeout:       getEnvAsDurationOrDefault("VERIFY_TIMEOUT", 3*time.Second),
		CacheTTL:            getEnvAsDurationOrDefault("CACHE_TTL", 5*time.Minute),
		UnverifiedCacheTTL:  getEnvAsDurationOrDefault("UNVERIFIED_CACHE_TTL", time.Minute),
		CacheSweepInterval:  getEnvAsDurationOrDefault("CACHE_SWEEP_INTERVAL", 10*time.Minute),
		GuardThreshold:      getEnvAsIntOrDefault("GUARD_THRESHOLD", 3),
		GuardCooldown:       getEnvAsDurationOrDefault("GUARD_COOLDOWN", 30*time.Second),
	}
}

// LoadPolicy reads the authorization policy (public path prefixes,
// carve-outs, role patterns) from a JSON file.
func LoadPolicy(path string) (*pathauthz.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	policy := pathauthz.NewPolicy()

	if err := json.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	return policy, nil
}

func getEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		panic(fmt.Sprintf("%s environment variable not set", key))
	}

	return value
}

func getEnvOrDefault(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	return value
}

func getOptionalEnv(key string) *string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil
	}

	return &value
}

func getEnvAsInt(key string) int {
	valueStr := getEnv(key)
	valueInt, err := strconv.Atoi(valueStr)

	if err != nil {
		panic(fmt.Sprintf("Error converting %s to integer: %v", key, err))
	}

	return valueInt
}

func getEnvAsIntOrDefault(key string, fallback int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}

	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		panic(fmt.Sprintf("Error converting %s to integer: %v", key, err))
	}

	return valueInt
}

func getEnvAsBoolOrDefault(key string, fallback bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}

	valueBool, err := strconv.ParseBool(valueStr)
	if err != nil {
		panic(fmt.Sprintf("Error converting %s to bool: %v", key, err))
	}

	return valueBool
}

func getEnvAsDurationOrDefault(key string, fallback time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}

	valueDuration, err := time.ParseDuration(valueStr)
	if err != nil {
		panic(fmt.Sprintf("Error converting %s to duration: %v", key, err))
	}

	return valueDuration
}
