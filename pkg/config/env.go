package config

import "strings"

// Deployment environments accepted in server.environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// NormalizeEnvironment lower-cases env and maps an empty value to development.
func NormalizeEnvironment(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return EnvDevelopment
	}
	return env
}

// productionLike reports whether env demands explicit, non-local backing services.
func productionLike(env string) bool {
	switch NormalizeEnvironment(env) {
	case EnvStaging, EnvProduction:
		return true
	}
	return false
}

// IsDevelopment reports whether the server runs with development defaults.
func (c ServerConfig) IsDevelopment() bool {
	return NormalizeEnvironment(c.Environment) == EnvDevelopment
}

// IsProductionLike reports whether the server runs in staging or production.
func (c ServerConfig) IsProductionLike() bool {
	return productionLike(c.Environment)
}
