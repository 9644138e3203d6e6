package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/parley/domain/variable"
)

// variableItem is the DynamoDB item representation of a variable value.
type variableItem struct {
	ScopeKey      string `dynamodbav:"scope_key"`
	Name          string `dynamodbav:"name"`
	Data          []byte `dynamodbav:"data"`
	LastRefreshed string `dynamodbav:"last_refreshed"`
}

// VariableStore is a DynamoDB-backed implementation of variable.Store.
type VariableStore struct {
	client       *dynamodb.Client
	tableName    string
	queryTimeout time.Duration
}

// NewVariableStore creates a new DynamoDB variable store.
func NewVariableStore(client *Client) *VariableStore {
	return &VariableStore{
		client:       client.DynamoDB(),
		tableName:    client.config.VariablesTableName,
		queryTimeout: client.config.QueryTimeout,
	}
}

// Get retrieves a value.
func (s *VariableStore) Get(ctx context.Context, name, scopeKey string) (variable.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(scopeKey, name),
	})
	if err != nil {
		return variable.Value{}, s.wrapError(err)
	}
	if result.Item == nil {
		return variable.Value{}, variable.ErrNotFound
	}

	var item variableItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return variable.Value{}, err
	}
	return s.fromItem(item)
}

// Put writes a value.
func (s *VariableStore) Put(ctx context.Context, v variable.Value) error {
	if v.Name == "" {
		return variable.ErrEmptyName
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if v.LastRefreshed.IsZero() {
		v.LastRefreshed = time.Now()
	}

	av, err := attributevalue.MarshalMap(variableItem{
		ScopeKey:      v.ScopeKey,
		Name:          v.Name,
		Data:          v.Data,
		LastRefreshed: v.LastRefreshed.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return s.wrapError(err)
	}
	return nil
}

// Delete removes a value.
func (s *VariableStore) Delete(ctx context.Context, name, scopeKey string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(scopeKey, name),
	})
	if err != nil {
		return s.wrapError(err)
	}
	return nil
}

// List returns all values for a scope key.
func (s *VariableStore) List(ctx context.Context, scopeKey string) ([]variable.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	keyCond := expression.Key("scope_key").Equal(expression.Value(scopeKey))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}

	var values []variable.Value
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError(err)
		}
		for _, raw := range page.Items {
			var item variableItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			v, err := s.fromItem(item)
			if err != nil {
				continue
			}
			values = append(values, v)
		}
	}
	return values, nil
}

func (s *VariableStore) key(scopeKey, name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"scope_key": &types.AttributeValueMemberS{Value: scopeKey},
		"name":      &types.AttributeValueMemberS{Value: name},
	}
}

func (s *VariableStore) fromItem(item variableItem) (variable.Value, error) {
	refreshed, err := time.Parse(time.RFC3339Nano, item.LastRefreshed)
	if err != nil {
		return variable.Value{}, err
	}
	return variable.Value{
		Name:          item.Name,
		ScopeKey:      item.ScopeKey,
		Data:          item.Data,
		LastRefreshed: refreshed,
	}, nil
}

func (s *VariableStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrConnectionFailed, err)
}

var _ variable.Store = (*VariableStore)(nil)
