package registry_test

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in-memory stand-in for DynamoDB that evaluates the
// condition and update expressions the reservation core emits: equality
// conjunctions, attribute_exists/attribute_not_exists, SET clauses and
// counter increments. Transactions are all-or-nothing with per-item
// cancellation reasons, matching the real service's contract.
type fakeClient struct {
	items map[string]map[string]types.AttributeValue

	// beforeTransact, if set, runs once at the start of the next
	// TransactWriteItems call. Tests use it to commit a competing write
	// between a caller's read and its conditional commit.
	beforeTransact func()
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func stringAttr(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func itemKey(key map[string]types.AttributeValue) string {
	return stringAttr(key["pk"]) + "|" + stringAttr(key["sk"])
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeClient) GetItem(_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, ok := f.items[itemKey(input.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeClient) PutItem(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := itemKey(input.Item)
	existing := f.items[key]
	if input.ConditionExpression != nil {
		if !evalCondition(*input.ConditionExpression, input.ExpressionAttributeNames, input.ExpressionAttributeValues, existing) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	f.items[key] = copyItem(input.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	key := itemKey(input.Key)
	existing := f.items[key]
	if input.ConditionExpression != nil {
		if !evalCondition(*input.ConditionExpression, input.ExpressionAttributeNames, input.ExpressionAttributeValues, existing) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	f.items[key] = applyUpdate(*input.UpdateExpression, input.ExpressionAttributeNames, input.ExpressionAttributeValues, existing, input.Key)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, input *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	key := itemKey(input.Key)
	existing := f.items[key]
	if input.ConditionExpression != nil {
		if !evalCondition(*input.ConditionExpression, input.ExpressionAttributeNames, input.ExpressionAttributeValues, existing) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(_ context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	pk := stringAttr(input.ExpressionAttributeValues[":pk"])
	prefix := ""
	if v, ok := input.ExpressionAttributeValues[":prefix"]; ok {
		prefix = stringAttr(v)
	}

	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if stringAttr(item["pk"]) != pk {
			continue
		}
		if prefix != "" && !strings.HasPrefix(stringAttr(item["sk"]), prefix) {
			continue
		}
		matched = append(matched, copyItem(item))
	}
	sort.Slice(matched, func(i, j int) bool {
		return stringAttr(matched[i]["sk"]) < stringAttr(matched[j]["sk"])
	})
	return &dynamodb.QueryOutput{Items: matched}, nil
}

func (f *fakeClient) TransactWriteItems(_ context.Context, input *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.beforeTransact != nil {
		fn := f.beforeTransact
		f.beforeTransact = nil
		fn()
	}

	reasons := make([]types.CancellationReason, len(input.TransactItems))
	failed := false
	for i, item := range input.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		expr, names, values, key := transactCondition(item)
		if expr == "" {
			continue
		}
		if !evalCondition(expr, names, values, f.items[key]) {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range input.TransactItems {
		switch {
		case item.Put != nil:
			f.items[itemKey(item.Put.Item)] = copyItem(item.Put.Item)
		case item.Update != nil:
			key := itemKey(item.Update.Key)
			f.items[key] = applyUpdate(*item.Update.UpdateExpression, item.Update.ExpressionAttributeNames, item.Update.ExpressionAttributeValues, f.items[key], item.Update.Key)
		case item.Delete != nil:
			delete(f.items, itemKey(item.Delete.Key))
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func transactCondition(item types.TransactWriteItem) (expr string, names map[string]string, values map[string]types.AttributeValue, key string) {
	switch {
	case item.Put != nil:
		if item.Put.ConditionExpression != nil {
			expr = *item.Put.ConditionExpression
		}
		return expr, item.Put.ExpressionAttributeNames, item.Put.ExpressionAttributeValues, itemKey(item.Put.Item)
	case item.Update != nil:
		if item.Update.ConditionExpression != nil {
			expr = *item.Update.ConditionExpression
		}
		return expr, item.Update.ExpressionAttributeNames, item.Update.ExpressionAttributeValues, itemKey(item.Update.Key)
	case item.Delete != nil:
		if item.Delete.ConditionExpression != nil {
			expr = *item.Delete.ConditionExpression
		}
		return expr, item.Delete.ExpressionAttributeNames, item.Delete.ExpressionAttributeValues, itemKey(item.Delete.Key)
	}
	return "", nil, nil, ""
}

func evalCondition(expr string, names map[string]string, values map[string]types.AttributeValue, existing map[string]types.AttributeValue) bool {
	for _, term := range strings.Split(expr, " AND ") {
		term = strings.TrimSpace(term)
		switch {
		case term == "attribute_not_exists(pk)":
			if existing != nil {
				return false
			}
		case term == "attribute_exists(pk)":
			if existing == nil {
				return false
			}
		default:
			lhs, rhs, ok := strings.Cut(term, " = ")
			if !ok {
				panic(fmt.Sprintf("fake: unsupported condition term %q", term))
			}
			attr := resolveName(lhs, names)
			want, ok := values[rhs]
			if !ok {
				panic(fmt.Sprintf("fake: missing value %q", rhs))
			}
			if existing == nil || !avEqual(existing[attr], want) {
				return false
			}
		}
	}
	return true
}

func applyUpdate(expr string, names map[string]string, values map[string]types.AttributeValue, existing, key map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := copyItem(existing)
	if out == nil {
		out = copyItem(key)
	}
	clauses, ok := strings.CutPrefix(expr, "SET ")
	if !ok {
		panic(fmt.Sprintf("fake: unsupported update expression %q", expr))
	}
	for _, clause := range strings.Split(clauses, ", ") {
		target, value, ok := strings.Cut(clause, " = ")
		if !ok {
			panic(fmt.Sprintf("fake: unsupported SET clause %q", clause))
		}
		attr := resolveName(target, names)
		if operand, inc, isAdd := strings.Cut(value, " + "); isAdd {
			current := numberValue(out[resolveName(operand, names)])
			delta := numberValue(values[inc])
			out[attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+delta, 10)}
			continue
		}
		v, ok := values[value]
		if !ok {
			panic(fmt.Sprintf("fake: missing value %q", value))
		}
		out[attr] = v
	}
	return out
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		resolved, ok := names[name]
		if !ok {
			panic(fmt.Sprintf("fake: missing name %q", name))
		}
		return resolved
	}
	return name
}

func numberValue(av types.AttributeValue) int64 {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseInt(n.Value, 10, 64)
	return v
}

func avEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	}
	return false
}
