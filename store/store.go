package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client is the subset of the DynamoDB API the store uses.
// *dynamodb.Client satisfies it; tests substitute fakes.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Key addresses one item in the table.
type Key struct {
	PK string
	SK string
}

// AttributeValues returns the key in DynamoDB attribute form.
func (k Key) AttributeValues() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: k.PK},
		"sk": &types.AttributeValueMemberS{Value: k.SK},
	}
}

// Condition is an optional precondition on a write.
type Condition struct {
	Expression string
	Names      map[string]string
	Values     map[string]types.AttributeValue
}

// Update describes an UpdateItem call: the SET/ADD expression plus an
// optional precondition sharing the same name/value maps.
type Update struct {
	Expression string
	Condition  string
	Names      map[string]string
	Values     map[string]types.AttributeValue
}

// Store wraps a DynamoDB client with the single-table primitives.
type Store struct {
	client Client
	config Config
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Table returns the configured table name.
func (s *Store) Table() string {
	return s.config.Table
}

// Get retrieves an item by key, returning ErrNotFound if missing.
// The read is strongly consistent: the returned snapshot is the one the
// caller's subsequent conditional write is validated against.
func (s *Store) Get(ctx context.Context, key Key) (map[string]types.AttributeValue, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            key.AttributeValues(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return result.Item, nil
}

// Put writes an item, applying the condition if one is given.
func (s *Store) Put(ctx context.Context, item map[string]types.AttributeValue, cond *Condition) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      item,
	}
	if cond != nil {
		input.ConditionExpression = aws.String(cond.Expression)
		input.ExpressionAttributeNames = cond.Names
		input.ExpressionAttributeValues = cond.Values
	}
	_, err := s.client.PutItem(ctx, input)
	return mapWriteError(err)
}

// UpdateItem applies an update expression to an item.
func (s *Store) UpdateItem(ctx context.Context, key Key, update Update) error {
	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.Table),
		Key:                       key.AttributeValues(),
		UpdateExpression:          aws.String(update.Expression),
		ExpressionAttributeNames:  update.Names,
		ExpressionAttributeValues: update.Values,
	}
	if update.Condition != "" {
		input.ConditionExpression = aws.String(update.Condition)
	}
	_, err := s.client.UpdateItem(ctx, input)
	return mapWriteError(err)
}

// Delete removes an item, applying the condition if one is given.
func (s *Store) Delete(ctx context.Context, key Key, cond *Condition) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.Table),
		Key:       key.AttributeValues(),
	}
	if cond != nil {
		input.ConditionExpression = aws.String(cond.Expression)
		input.ExpressionAttributeNames = cond.Names
		input.ExpressionAttributeValues = cond.Values
	}
	_, err := s.client.DeleteItem(ctx, input)
	return mapWriteError(err)
}

// Query returns every item in a partition whose sort key begins with the
// given prefix, paginating through all results. An empty prefix returns the
// whole partition.
func (s *Store) Query(ctx context.Context, pk, skPrefix string) ([]map[string]types.AttributeValue, error) {
	keyCond := "pk = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if skPrefix != "" {
		keyCond = "pk = :pk AND begins_with(sk, :prefix)"
		values[":prefix"] = &types.AttributeValueMemberS{Value: skPrefix}
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.Table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: values,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapUnavailable(err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// Transact executes 2-3 writes as a single all-or-nothing transaction.
// If any item's precondition failed, the returned error is a
// *TransactionCanceledError naming the failed indexes.
func (s *Store) Transact(ctx context.Context, items ...types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapTransactionError(err)
}

// TxPut builds a transactional put against the store's table.
func (s *Store) TxPut(item map[string]types.AttributeValue, cond *Condition) types.TransactWriteItem {
	put := &types.Put{
		TableName: aws.String(s.config.Table),
		Item:      item,
	}
	if cond != nil {
		put.ConditionExpression = aws.String(cond.Expression)
		put.ExpressionAttributeNames = cond.Names
		put.ExpressionAttributeValues = cond.Values
	}
	return types.TransactWriteItem{Put: put}
}

// TxUpdate builds a transactional update against the store's table.
func (s *Store) TxUpdate(key Key, update Update) types.TransactWriteItem {
	u := &types.Update{
		TableName:                 aws.String(s.config.Table),
		Key:                       key.AttributeValues(),
		UpdateExpression:          aws.String(update.Expression),
		ExpressionAttributeNames:  update.Names,
		ExpressionAttributeValues: update.Values,
	}
	if update.Condition != "" {
		u.ConditionExpression = aws.String(update.Condition)
	}
	return types.TransactWriteItem{Update: u}
}

// TxDelete builds a transactional delete against the store's table.
func (s *Store) TxDelete(key Key, cond *Condition) types.TransactWriteItem {
	del := &types.Delete{
		TableName: aws.String(s.config.Table),
		Key:       key.AttributeValues(),
	}
	if cond != nil {
		del.ConditionExpression = aws.String(cond.Expression)
		del.ExpressionAttributeNames = cond.Names
		del.ExpressionAttributeValues = cond.Values
	}
	return types.TransactWriteItem{Delete: del}
}

// mapWriteError translates single-item write failures.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrConditionFailed
	}
	return wrapUnavailable(err)
}

// mapTransactionError translates TransactWriteItems failures, extracting the
// indexes whose conditions were rejected.
func mapTransactionError(err error) error {
	if err == nil {
		return nil
	}
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		var failed []int
		conflict := false
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				failed = append(failed, i)
			case "TransactionConflict":
				conflict = true
			}
		}
		if len(failed) > 0 {
			return &TransactionCanceledError{FailedIndexes: failed}
		}
		if conflict {
			// Lost to a concurrent transaction on the same items.
			return ErrConditionFailed
		}
	}
	var conflictErr *types.TransactionConflictException
	if errors.As(err, &conflictErr) {
		return ErrConditionFailed
	}
	return wrapUnavailable(err)
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
