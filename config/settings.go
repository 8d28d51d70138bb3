package config

import (
	"gopkg.in/yaml.v3"
)

const maskedValue = "********"

func mask(s string) string {
	if s == "" {
		return ""
	}
	return maskedValue
}

// MaskSensitiveSettings returns a copy with passwords and secrets masked
func MaskSensitiveSettings(config *Config) *Config {
	masked := *config
	masked.API.AllowedOrigins = append([]string(nil), config.API.AllowedOrigins...)
	masked.Auth.JWTSecret = mask(config.Auth.JWTSecret)
	masked.SMTP.Password = mask(config.SMTP.Password)
	masked.Redis.Password = mask(config.Redis.Password)
	masked.Media.S3.AccessKey = mask(config.Media.S3.AccessKey)
	masked.Media.S3.SecretKey = mask(config.Media.S3.SecretKey)
	masked.Secrets.Vault.Token = mask(config.Secrets.Vault.Token)
	masked.Secrets.AWS.AccessKey = mask(config.Secrets.AWS.AccessKey)
	masked.Secrets.AWS.SecretKey = mask(config.Secrets.AWS.SecretKey)
	return &masked
}

// RedactedYAML renders the effective configuration with secrets masked
func RedactedYAML(config *Config) ([]byte, error) {
	return yaml.Marshal(MaskSensitiveSettings(config))
}
