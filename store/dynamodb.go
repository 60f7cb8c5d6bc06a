package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/sicko7947/idemflow"
)

// DynamoDBStorage implements idemflow.Storage using AWS DynamoDB.
// Items past their ttl attribute are treated as absent, since native TTL deletion is lazy.
type DynamoDBStorage[V any] struct {
	client    DynamoDBClient
	tableName string
	opts      options
	logger    zerolog.Logger
}

// NewDynamoDBStorage creates a new DynamoDB-backed result storage
func NewDynamoDBStorage[V any](client DynamoDBClient, tableName string, opts ...Option) *DynamoDBStorage[V] {
	o := newOptions(opts)
	return &DynamoDBStorage[V]{
		client:    client,
		tableName: tableName,
		opts:      o,
		logger:    o.logger,
	}
}

func resultItemKey(key idemflow.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: resultPK(key)},
		AttrSK: &types.AttributeValueMemberS{Value: resultSK()},
	}
}

func (s *DynamoDBStorage[V]) Get(ctx context.Context, key idemflow.Key) (V, bool, error) {
	var zero V

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            resultItemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return zero, false, idemflow.NewStorageError("get", fmt.Errorf("failed to get result: %w", err)).WithKey(key)
	}

	if result.Item == nil {
		s.logger.Debug().Str("key", key.String()).Msg("dynamodb storage miss")
		return zero, false, nil
	}

	if ttlAttr, ok := result.Item[AttrTTL].(*types.AttributeValueMemberN); ok {
		expiresAt, err := strconv.ParseInt(ttlAttr.Value, 10, 64)
		if err == nil && expiresAt <= s.opts.now().Unix() {
			s.logger.Debug().Str("key", key.String()).Msg("dynamodb storage entry expired")
			return zero, false, nil
		}
	}

	dataAttr, ok := result.Item[AttrData].(*types.AttributeValueMemberB)
	if !ok {
		return zero, false, idemflow.NewStorageError("get", fmt.Errorf("result item has no %s attribute", AttrData)).WithKey(key)
	}

	value, err := decodeValue[V](dataAttr.Value)
	if err != nil {
		return zero, false, idemflow.NewStorageError("get", err).WithKey(key)
	}

	s.logger.Debug().Str("key", key.String()).Msg("dynamodb storage hit")
	return value, true, nil
}

func (s *DynamoDBStorage[V]) Set(ctx context.Context, key idemflow.Key, value V) error {
	data, err := encodeValue(value)
	if err != nil {
		return idemflow.NewStorageError("set", err).WithKey(key)
	}

	now := s.opts.now()
	item := resultItemKey(key)
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeResult}
	item[AttrData] = &types.AttributeValueMemberB{Value: data}
	item[AttrCreatedAt] = &types.AttributeValueMemberS{Value: now.UTC().Format(sortableTime)}
	if s.opts.ttl > 0 {
		item[AttrTTL] = &types.AttributeValueMemberN{
			Value: strconv.FormatInt(now.Add(s.opts.ttl).Unix(), 10),
		}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return idemflow.NewStorageError("set", fmt.Errorf("failed to put result: %w", err)).WithKey(key)
	}

	return nil
}

func (s *DynamoDBStorage[V]) Remove(ctx context.Context, key idemflow.Key) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       resultItemKey(key),
	})
	if err != nil {
		return idemflow.NewStorageError("remove", fmt.Errorf("failed to delete result: %w", err)).WithKey(key)
	}
	return nil
}

// DynamoDBCheckpointStorage implements idemflow.CheckpointStorage using AWS DynamoDB.
// All checkpoints of a workflow share a partition and sort by creation time.
type DynamoDBCheckpointStorage struct {
	client    DynamoDBClient
	tableName string
}

// NewDynamoDBCheckpointStorage creates a new DynamoDB-backed checkpoint storage
func NewDynamoDBCheckpointStorage(client DynamoDBClient, tableName string) *DynamoDBCheckpointStorage {
	return &DynamoDBCheckpointStorage{
		client:    client,
		tableName: tableName,
	}
}

func (s *DynamoDBCheckpointStorage) Save(ctx context.Context, cp *idemflow.WorkflowCheckpoint) error {
	// Marshal the checkpoint
	item, err := attributevalue.MarshalMap(cp)
	if err != nil {
		return idemflow.NewStorageError("save checkpoint", fmt.Errorf("failed to marshal checkpoint: %w", err))
	}

	// Add keys
	item[AttrPK] = &types.AttributeValueMemberS{Value: checkpointPK(cp.WorkflowID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: checkpointSK(cp.CreatedAt, cp.CheckpointID)}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeCheckpoint}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return idemflow.NewStorageError("save checkpoint", fmt.Errorf("failed to put checkpoint: %w", err))
	}

	return nil
}

func (s *DynamoDBCheckpointStorage) Latest(ctx context.Context, workflowID string) (*idemflow.WorkflowCheckpoint, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: checkpointPK(workflowID)},
			":sk": &types.AttributeValueMemberS{Value: checkpointPrefix()},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, idemflow.NewStorageError("latest checkpoint", fmt.Errorf("failed to query checkpoints: %w", err))
	}

	if len(result.Items) == 0 {
		return nil, nil
	}

	var cp idemflow.WorkflowCheckpoint
	if err := attributevalue.UnmarshalMap(result.Items[0], &cp); err != nil {
		return nil, idemflow.NewStorageError("latest checkpoint", fmt.Errorf("failed to unmarshal checkpoint: %w", err))
	}

	return &cp, nil
}

func (s *DynamoDBCheckpointStorage) Clear(ctx context.Context, workflowID string) error {
	var lastEvaluatedKey map[string]types.AttributeValue

	// Paginate through all checkpoint keys
	for {
		queryInput := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: checkpointPK(workflowID)},
				":sk": &types.AttributeValueMemberS{Value: checkpointPrefix()},
			},
			ProjectionExpression: aws.String("PK, SK"),
		}

		if lastEvaluatedKey != nil {
			queryInput.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := s.client.Query(ctx, queryInput)
		if err != nil {
			return idemflow.NewStorageError("clear checkpoints", fmt.Errorf("failed to query checkpoints: %w", err))
		}

		for _, item := range result.Items {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					AttrPK: item[AttrPK],
					AttrSK: item[AttrSK],
				},
			})
			if err != nil {
				return idemflow.NewStorageError("clear checkpoints", fmt.Errorf("failed to delete checkpoint: %w", err))
			}
		}

		// Check if there are more results
		if result.LastEvaluatedKey == nil {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	return nil
}

var (
	_ idemflow.Storage[string]   = (*DynamoDBStorage[string])(nil)
	_ idemflow.CheckpointStorage = (*DynamoDBCheckpointStorage)(nil)
)
