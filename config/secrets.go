package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/hashicorp/vault/api"
)

// Secret keys looked up in every provider
const (
	SecretJWT          = "jwt_secret"
	SecretSMTPPassword = "smtp_password"
)

// ErrSecretNotFound is returned when a provider has no value for a key
var ErrSecretNotFound = errors.New("secret not found")

// SecretManager interface for retrieving secrets
type SecretManager interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// EnvSecretManager uses environment variables (default)
type EnvSecretManager struct{}

func (e *EnvSecretManager) GetSecret(_ context.Context, key string) (string, error) {
	envKey := "LOUYASS_" + strings.ToUpper(key)
	value := os.Getenv(envKey)
	if value == "" {
		return "", fmt.Errorf("environment variable %s: %w", envKey, ErrSecretNotFound)
	}
	return value, nil
}

// VaultSecretManager reads a KV v2 secret from HashiCorp Vault
type VaultSecretManager struct {
	mount string
	path  string
	kv    *api.KVv2
}

func NewVaultSecretManager(config *Config) (*VaultSecretManager, error) {
	client, err := api.NewClient(&api.Config{
		Address: config.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if config.Secrets.Vault.Token != "" {
		client.SetToken(config.Secrets.Vault.Token)
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	mount := config.Secrets.Vault.Mount
	if mount == "" {
		mount = "secret"
	}
	path := config.Secrets.Vault.Path
	if path == "" {
		path = "louyass"
	}

	return &VaultSecretManager{
		mount: mount,
		path:  path,
		kv:    client.KVv2(mount),
	}, nil
}

func (v *VaultSecretManager) GetSecret(ctx context.Context, key string) (string, error) {
	secret, err := v.kv.Get(ctx, v.path)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return "", fmt.Errorf("vault path %s/%s: %w", v.mount, v.path, ErrSecretNotFound)
		}
		return "", fmt.Errorf("failed to read from Vault: %w", err)
	}

	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("key %s in Vault secret: %w", key, ErrSecretNotFound)
	}

	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key %s is not a string", key)
	}

	return strValue, nil
}

// AWSSecretManager retrieves secrets from AWS Secrets Manager. The secret is a
// JSON object keyed like the other providers.
type AWSSecretManager struct {
	secretID string
	client   secretsmanageriface.SecretsManagerAPI
}

func NewAWSSecretManager(config *Config) (*AWSSecretManager, error) {
	awsCfg := &aws.Config{Region: aws.String(config.Secrets.AWS.Region)}
	if config.Secrets.AWS.AccessKey != "" && config.Secrets.AWS.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			config.Secrets.AWS.AccessKey,
			config.Secrets.AWS.SecretKey,
			"",
		)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	secretID := config.Secrets.AWS.SecretID
	if secretID == "" {
		secretID = "louyass/secrets"
	}

	return &AWSSecretManager{
		secretID: secretID,
		client:   secretsmanager.New(sess),
	}, nil
}

func (a *AWSSecretManager) GetSecret(ctx context.Context, key string) (string, error) {
	result, err := a.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret from AWS: %w", err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("AWS secret %s has no string value", a.secretID)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return "", fmt.Errorf("failed to parse AWS secret JSON: %w", err)
	}

	value, ok := secrets[key]
	if !ok || value == "" {
		return "", fmt.Errorf("key %s in AWS secret: %w", key, ErrSecretNotFound)
	}

	return value, nil
}

// NewSecretManager creates the appropriate secret manager based on configuration
func NewSecretManager(config *Config) (SecretManager, error) {
	provider := config.Secrets.Provider
	if provider == "" {
		provider = "env"
	}

	switch provider {
	case "env":
		return &EnvSecretManager{}, nil
	case "vault":
		return NewVaultSecretManager(config)
	case "aws":
		return NewAWSSecretManager(config)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", provider)
	}
}

// LoadSecrets overrides the JWT secret and SMTP password with values from the
// configured provider. Keys the provider does not hold keep their file/env
// value; any other provider error is fatal.
func LoadSecrets(config *Config) error {
	manager, err := NewSecretManager(config)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	return applySecrets(context.Background(), manager, config)
}

func applySecrets(ctx context.Context, manager SecretManager, config *Config) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	targets := []struct {
		key  string
		dest *string
	}{
		{SecretJWT, &config.Auth.JWTSecret},
		{SecretSMTPPassword, &config.SMTP.Password},
	}
	for _, t := range targets {
		value, err := manager.GetSecret(ctx, t.key)
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", t.key, err)
		}
		*t.dest = value
	}
	return nil
}
