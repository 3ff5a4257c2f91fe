package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// SecretsManagerStore keeps each key as a string secret; the secret is
// created on first write.
type SecretsManagerStore struct {
	api    SecretsManagerAPI
	prefix string
}

func NewSecretsManagerStore(api SecretsManagerAPI, prefix string) *SecretsManagerStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SecretsManagerStore{api: api, prefix: prefix}
}

func (s *SecretsManagerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	name := qualify(s.prefix, key)
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	var notFound *smtypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("secretsmanager get %s: %w", name, err)
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), true, nil
	}
	if out.SecretBinary != nil {
		return out.SecretBinary, true, nil
	}
	return nil, false, nil
}

func (s *SecretsManagerStore) Put(ctx context.Context, key string, value []byte) error {
	name := qualify(s.prefix, key)
	_, err := s.api.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(value)),
	})
	var notFound *smtypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		_, err = s.api.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(string(value)),
			Description:  aws.String("email filter state: " + key),
		})
	}
	if err != nil {
		return fmt.Errorf("secretsmanager put %s: %w", name, err)
	}
	return nil
}
