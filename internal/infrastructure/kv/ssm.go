package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const DefaultPrefix = "/email-filter"

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMStore keeps each key as a SecureString parameter under prefix.
// Parameters use the advanced tier since a token cache can exceed 4 KB.
type SSMStore struct {
	api    SSMAPI
	prefix string
}

func NewSSMStore(api SSMAPI, prefix string) *SSMStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SSMStore{api: api, prefix: prefix}
}

func (s *SSMStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	name := qualify(s.prefix, key)
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	var notFound *ssmtypes.ParameterNotFound
	if errors.As(err, &notFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ssm get %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, false, nil
	}
	return []byte(*out.Parameter.Value), true, nil
}

func (s *SSMStore) Put(ctx context.Context, key string, value []byte) error {
	name := qualify(s.prefix, key)
	_, err := s.api.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(string(value)),
		Type:      ssmtypes.ParameterTypeSecureString,
		Tier:      ssmtypes.ParameterTierAdvanced,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("ssm put %s: %w", name, err)
	}
	return nil
}
