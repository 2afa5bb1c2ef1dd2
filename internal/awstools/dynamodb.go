package awstools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type QueryOptions struct {
	ExprAttrNames map[string]string
	IndexName     string
	Limit         int32
}

func CreateItem(ctx context.Context, c DynamoClient, table string, item map[string]any) (string, error) {
	if len(item) == 0 {
		return "", fmt.Errorf("item is empty")
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return "", fmt.Errorf("marshal item: %w", err)
	}
	if _, err := c.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	}); err != nil {
		return "", fmt.Errorf("dynamodb PutItem %s: %w", table, err)
	}
	return fmt.Sprintf("Item created in table %s", table), nil
}

// ReadItem returns the item as plain JSON values, or nil when it does not exist.
func ReadItem(ctx context.Context, c DynamoClient, table string, key map[string]any) (map[string]any, error) {
	k, err := marshalKey(key)
	if err != nil {
		return nil, err
	}
	out, err := c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem %s: %w", table, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item map[string]any
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return item, nil
}

// UpdateItem sets every attribute in updates on the item identified by key.
func UpdateItem(ctx context.Context, c DynamoClient, table string, key, updates map[string]any) (string, error) {
	if len(updates) == 0 {
		return "", fmt.Errorf("updates are empty")
	}
	k, err := marshalKey(key)
	if err != nil {
		return "", err
	}
	expr, names, values, err := buildSetExpression(updates)
	if err != nil {
		return "", err
	}
	if _, err := c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       k,
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}); err != nil {
		return "", fmt.Errorf("dynamodb UpdateItem %s: %w", table, err)
	}
	return fmt.Sprintf("Item updated in table %s", table), nil
}

// buildSetExpression renders "SET #u0 = :u0, #u1 = :u1" over the attribute
// names in sorted order.
func buildSetExpression(updates map[string]any) (string, map[string]string, map[string]ddbtypes.AttributeValue, error) {
	attrs := make([]string, 0, len(updates))
	for a := range updates {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)

	names := make(map[string]string, len(attrs))
	values := make(map[string]ddbtypes.AttributeValue, len(attrs))
	parts := make([]string, 0, len(attrs))
	for i, a := range attrs {
		n := fmt.Sprintf("#u%d", i)
		v := fmt.Sprintf(":u%d", i)
		av, err := attributevalue.Marshal(updates[a])
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal update %s: %w", a, err)
		}
		names[n] = a
		values[v] = av
		parts = append(parts, n+" = "+v)
	}
	return "SET " + strings.Join(parts, ", "), names, values, nil
}

func QueryItems(ctx context.Context, c DynamoClient, table, keyCondition string, exprAttrValues map[string]any, opt QueryOptions) ([]map[string]any, error) {
	if strings.TrimSpace(keyCondition) == "" {
		return nil, fmt.Errorf("missing key condition")
	}
	values, err := attributevalue.MarshalMap(exprAttrValues)
	if err != nil {
		return nil, fmt.Errorf("marshal expression values: %w", err)
	}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String(keyCondition),
		ExpressionAttributeValues: values,
	}
	if len(opt.ExprAttrNames) > 0 {
		in.ExpressionAttributeNames = opt.ExprAttrNames
	}
	if opt.IndexName != "" {
		in.IndexName = aws.String(opt.IndexName)
	}
	if opt.Limit > 0 {
		in.Limit = aws.Int32(opt.Limit)
	}

	out, err := c.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("dynamodb Query %s: %w", table, err)
	}
	items := make([]map[string]any, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}

func ListTables(ctx context.Context, c DynamoClient) ([]string, error) {
	out := make([]string, 0)
	p := dynamodb.NewListTablesPaginator(c, &dynamodb.ListTablesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb ListTables: %w", err)
		}
		out = append(out, page.TableNames...)
	}
	return out, nil
}

func marshalKey(key map[string]any) (map[string]ddbtypes.AttributeValue, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("key is empty")
	}
	k, err := attributevalue.MarshalMap(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return k, nil
}
