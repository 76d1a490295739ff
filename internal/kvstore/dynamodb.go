package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBStore implements Store using AWS DynamoDB.
// Counters live in a number attribute mutated with an ADD update expression,
// which DynamoDB applies atomically per item. Expiry relies on the table's
// TTL attribute; because DynamoDB deletes expired items lazily, reads filter
// on the expiry timestamp themselves.
type DynamoDBStore struct {
	client    *dynamodb.Client
	tableName string
}

// dynamoDBItem represents a stored entry. Exactly one of Value and Number is
// populated: Set writes Value, IncrBy maintains Number.
type dynamoDBItem struct {
	Key       string `dynamodbav:"k"`
	Value     string `dynamodbav:"v,omitempty"`
	Number    int64  `dynamodbav:"n,omitempty"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// NewDynamoDBStore creates a new DynamoDB-backed store.
func NewDynamoDBStore(tableName, region string) (*DynamoDBStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &DynamoDBStore{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

// Get retrieves the value for the given key from DynamoDB.
func (d *DynamoDBStore) Get(ctx context.Context, key string) (string, bool, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	}

	result, err := d.client.GetItem(ctx, input)
	if err != nil {
		return "", false, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return "", false, nil
	}

	var item dynamoDBItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal DynamoDB item: %w", err)
	}

	// TTL deletion is lazy, an expired item may still be present
	if item.ExpiresAt <= time.Now().Unix() {
		return "", false, nil
	}

	if item.Value != "" {
		return item.Value, true, nil
	}
	return strconv.FormatInt(item.Number, 10), true, nil
}

// Set stores a value under the key with a TTL.
func (d *DynamoDBStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	item := dynamoDBItem{
		Key:       key,
		Value:     value,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal DynamoDB item: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item in DynamoDB: %w", err)
	}

	return nil
}

// IncrBy atomically adds delta to the number stored at key.
func (d *DynamoDBStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration, refreshTTL bool) (int64, error) {
	expiresAt := time.Now().Add(ttl).Unix()

	update := "SET #exp = if_not_exists(#exp, :exp) ADD #n :d"
	if refreshTTL {
		update = "SET #exp = :exp ADD #n :d"
	}

	result, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String(update),
		ExpressionAttributeNames: map[string]string{
			"#n":   "n",
			"#exp": "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":   &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
			":exp": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update item in DynamoDB: %w", err)
	}

	attr, ok := result.Attributes["n"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("unexpected attribute type for counter at %s", key)
	}

	newValue, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter value: %w", err)
	}

	return newValue, nil
}

// Delete removes the key from DynamoDB.
func (d *DynamoDBStore) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete item from DynamoDB: %w", err)
	}

	return nil
}

// Ping checks if the DynamoDB table is reachable.
func (d *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	return err
}

// Close releases resources. The DynamoDB client holds no persistent connections.
func (d *DynamoDBStore) Close() error {
	return nil
}
