package tools

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsagent/internal/awstools"
)

type putRecorder struct {
	awstools.DynamoClient
	in *dynamodb.PutItemInput
}

func (p *putRecorder) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	p.in = in
	return &dynamodb.PutItemOutput{}, nil
}

type invokeRecorder struct {
	awstools.LambdaClient
	calls []*lambda.InvokeInput
}

func (i *invokeRecorder) Invoke(ctx context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	i.calls = append(i.calls, in)
	return &lambda.InvokeOutput{StatusCode: 200, Payload: []byte(`{"ok":true}`)}, nil
}

type streamRecorder struct {
	awstools.LogsClient
	in *cloudwatchlogs.DescribeLogStreamsInput
}

func (s *streamRecorder) DescribeLogStreams(ctx context.Context, in *cloudwatchlogs.DescribeLogStreamsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error) {
	s.in = in
	return &cloudwatchlogs.DescribeLogStreamsOutput{}, nil
}

func toolNames(r *Registry) []string {
	out := []string{}
	for _, t := range r.List() {
		out = append(out, t.Name())
	}
	return out
}

func TestNewAWSRegistry_Names(t *testing.T) {
	r := NewAWSRegistry(&awstools.Clients{}, AWSOptions{})
	assert.Equal(t, []string{
		"api_execute",
		"api_list",
		"cloudwatch_get_agent_core_logs",
		"cloudwatch_get_logs",
		"cloudwatch_list_log_groups",
		"cloudwatch_list_log_streams",
		"dynamodb_create",
		"dynamodb_list",
		"dynamodb_query",
		"dynamodb_read",
		"dynamodb_update",
		"lambda_get_code",
		"lambda_invoke",
		"lambda_list",
	}, toolNames(r))

	r = NewAWSRegistry(&awstools.Clients{}, AWSOptions{Athena: awstools.AthenaRunOptions{Database: "ops"}})
	_, ok := r.Get("athena_query")
	assert.True(t, ok)
	_, ok = r.Get("glue_get_table")
	assert.True(t, ok)
	assert.Len(t, r.List(), 16)
}

func TestNewAWSRegistry_DynamoCreate(t *testing.T) {
	rec := &putRecorder{}
	r := NewAWSRegistry(&awstools.Clients{Dynamo: rec}, AWSOptions{})

	out, err := r.Execute(context.Background(), "dynamodb_create", map[string]any{
		"table_name": "orders",
		"item":       `{"id":"o-1"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Item created in table orders", out)
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: "o-1"}, rec.in.Item["id"])

	_, err = r.Execute(context.Background(), "dynamodb_create", map[string]any{"table_name": "orders"})
	assert.EqualError(t, err, `missing required argument "item"`)
}

func TestNewAWSRegistry_LambdaInvokeNeedsPayload(t *testing.T) {
	rec := &invokeRecorder{}
	r := NewAWSRegistry(&awstools.Clients{Lambda: rec}, AWSOptions{})

	_, err := r.Execute(context.Background(), "lambda_invoke", map[string]any{"function_name": "orders"})
	assert.EqualError(t, err, `missing required argument "payload"`)
	assert.Empty(t, rec.calls)

	_, err = r.Execute(context.Background(), "lambda_invoke", map[string]any{
		"function_name": "orders",
		"payload":       map[string]any{"id": 1.0},
	})
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)
	assert.JSONEq(t, `{"id":1}`, string(rec.calls[0].Payload))
}

func TestNewAWSRegistry_LogStreamsLimit(t *testing.T) {
	rec := &streamRecorder{}
	r := NewAWSRegistry(&awstools.Clients{Logs: rec}, AWSOptions{})

	_, err := r.Execute(context.Background(), "cloudwatch_list_log_streams", map[string]any{
		"log_group_name": "/aws/lambda/orders",
		"limit":          5.0,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(5), aws.ToInt32(rec.in.Limit))

	_, err = r.Execute(context.Background(), "cloudwatch_list_log_streams", map[string]any{
		"log_group_name": "/aws/lambda/orders",
		"limit":          "lots",
	})
	assert.EqualError(t, err, `argument "limit" must be an integer`)
}
