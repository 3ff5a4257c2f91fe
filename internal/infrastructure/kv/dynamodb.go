package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	DefaultDynamoDBTable = "email-filter-tokens"

	attrID    = "id"
	attrValue = "value"
)

// DynamoDBAPI is the subset of *dynamodb.Client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBStore keeps one item per key: {id: key, value: string}.
type DynamoDBStore struct {
	api   DynamoDBAPI
	table string
}

func NewDynamoDBStore(api DynamoDBAPI, table string) *DynamoDBStore {
	if table == "" {
		table = DefaultDynamoDBTable
	}
	return &DynamoDBStore{api: api, table: table}
}

func (s *DynamoDBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{attrID: &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	if v, ok := itemValue(out.Item); ok {
		return v, true, nil
	}
	return nil, false, fmt.Errorf("dynamodb get %s: item has no readable value attribute", key)
}

func (s *DynamoDBStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			attrID:    &types.AttributeValueMemberS{Value: key},
			attrValue: &types.AttributeValueMemberS{Value: string(value)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb put %s: %w", key, err)
	}
	return nil
}

// itemValue reads the value attribute, falling back to the layouts written by
// the older scripts: a "cache" or "subscription_id" string and an
// "email_ids" list.
func itemValue(item map[string]types.AttributeValue) ([]byte, bool) {
	switch v := item[attrValue].(type) {
	case *types.AttributeValueMemberS:
		return []byte(v.Value), true
	case *types.AttributeValueMemberB:
		return v.Value, true
	}

	for _, attr := range []string{"cache", "subscription_id"} {
		if v, ok := item[attr].(*types.AttributeValueMemberS); ok {
			return []byte(v.Value), true
		}
	}

	var ids []string
	switch v := item["email_ids"].(type) {
	case *types.AttributeValueMemberSS:
		ids = v.Value
	case *types.AttributeValueMemberL:
		for _, e := range v.Value {
			if s, ok := e.(*types.AttributeValueMemberS); ok {
				ids = append(ids, s.Value)
			}
		}
	default:
		return nil, false
	}
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, false
	}
	return b, true
}
