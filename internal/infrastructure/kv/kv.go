// Package kv provides the small key-value persistence shared by the token
// cache, the seen-set and the webhook subscription id.
package kv

import (
	"context"
	"fmt"
)

// Store is a byte-valued key-value store. Get reports found=false for a
// missing key with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

const (
	BackendFile           = "file"
	BackendSQLite         = "sqlite"
	BackendDynamoDB       = "dynamodb"
	BackendSSM            = "ssm"
	BackendSecretsManager = "secretsmanager"
	BackendMemory         = "memory"
)

type Options struct {
	Backend string
	// Path is the directory for file and the database file for sqlite.
	Path string
	// Table is the DynamoDB table.
	Table string
	// Prefix namespaces SSM parameters and Secrets Manager secrets.
	Prefix string
	Region string
}

// Open builds the configured backend. The returned close func is never nil.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case BackendFile, "":
		s, err := NewFileStore(opts.Path)
		return s, noop, err
	case BackendSQLite:
		s, err := NewSQLiteStore(opts.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendDynamoDB:
		cfg, err := loadAWSConfig(ctx, opts.Region)
		if err != nil {
			return nil, noop, err
		}
		return NewDynamoDBStore(newDynamoDBClient(cfg), opts.Table), noop, nil
	case BackendSSM:
		cfg, err := loadAWSConfig(ctx, opts.Region)
		if err != nil {
			return nil, noop, err
		}
		return NewSSMStore(newSSMClient(cfg), opts.Prefix), noop, nil
	case BackendSecretsManager:
		cfg, err := loadAWSConfig(ctx, opts.Region)
		if err != nil {
			return nil, noop, err
		}
		return NewSecretsManagerStore(newSecretsManagerClient(cfg), opts.Prefix), noop, nil
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", opts.Backend)
}
