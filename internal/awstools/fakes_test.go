package awstools

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

type fakeLambda struct {
	invokeIn  *lambda.InvokeInput
	invokeOut *lambda.InvokeOutput
	getOut    *lambda.GetFunctionOutput
	pages     []*lambda.ListFunctionsOutput
	listCalls int
	err       error
}

func (f *fakeLambda) Invoke(ctx context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.invokeIn = in
	return f.invokeOut, f.err
}

func (f *fakeLambda) GetFunction(ctx context.Context, in *lambda.GetFunctionInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	return f.getOut, f.err
}

func (f *fakeLambda) ListFunctions(ctx context.Context, in *lambda.ListFunctionsInput, _ ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := f.pages[f.listCalls]
	f.listCalls++
	return p, nil
}

type fakeDynamo struct {
	putIn    *dynamodb.PutItemInput
	getIn    *dynamodb.GetItemInput
	getOut   *dynamodb.GetItemOutput
	updateIn *dynamodb.UpdateItemInput
	queryIn  *dynamodb.QueryInput
	queryOut *dynamodb.QueryOutput
	tables   []*dynamodb.ListTablesOutput
	listN    int
	err      error
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putIn = in
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.getIn = in
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, f.err
	}
	return f.getOut, f.err
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateIn = in
	return &dynamodb.UpdateItemOutput{}, f.err
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryIn = in
	if f.queryOut == nil {
		return &dynamodb.QueryOutput{}, f.err
	}
	return f.queryOut, f.err
}

func (f *fakeDynamo) ListTables(ctx context.Context, in *dynamodb.ListTablesInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := f.tables[f.listN]
	f.listN++
	return p, nil
}

type fakeRestAPI struct {
	pages []*apigateway.GetRestApisOutput
	n     int
}

func (f *fakeRestAPI) GetRestApis(ctx context.Context, in *apigateway.GetRestApisInput, _ ...func(*apigateway.Options)) (*apigateway.GetRestApisOutput, error) {
	p := f.pages[f.n]
	f.n++
	return p, nil
}

type fakeHTTPAPI struct {
	pages []*apigatewayv2.GetApisOutput
	n     int
	err   error
}

func (f *fakeHTTPAPI) GetApis(ctx context.Context, in *apigatewayv2.GetApisInput, _ ...func(*apigatewayv2.Options)) (*apigatewayv2.GetApisOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := f.pages[f.n]
	f.n++
	return p, nil
}

type fakeLogs struct {
	groups    map[string][]string // prefix -> groups
	groupErr  map[string]error
	streamsIn *cloudwatchlogs.DescribeLogStreamsInput
	streams   []string
	filterIn  []*cloudwatchlogs.FilterLogEventsInput
	events    map[string]*cloudwatchlogs.FilterLogEventsOutput
	filterErr map[string]error
}

func (f *fakeLogs) DescribeLogGroups(ctx context.Context, in *cloudwatchlogs.DescribeLogGroupsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	prefix := ""
	if in.LogGroupNamePrefix != nil {
		prefix = *in.LogGroupNamePrefix
	}
	if err := f.groupErr[prefix]; err != nil {
		return nil, err
	}
	out := &cloudwatchlogs.DescribeLogGroupsOutput{}
	for _, g := range f.groups[prefix] {
		out.LogGroups = append(out.LogGroups, logstypes.LogGroup{LogGroupName: aws.String(g)})
	}
	return out, nil
}

// pagedLogs serves DescribeLogGroups pages in order and records the tokens.
type pagedLogs struct {
	fakeLogs
	pages  []*cloudwatchlogs.DescribeLogGroupsOutput
	tokens []*string
}

func (f *pagedLogs) DescribeLogGroups(ctx context.Context, in *cloudwatchlogs.DescribeLogGroupsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	f.tokens = append(f.tokens, in.NextToken)
	p := f.pages[len(f.tokens)-1]
	return p, nil
}

func (f *fakeLogs) DescribeLogStreams(ctx context.Context, in *cloudwatchlogs.DescribeLogStreamsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error) {
	f.streamsIn = in
	out := &cloudwatchlogs.DescribeLogStreamsOutput{}
	for _, s := range f.streams {
		out.LogStreams = append(out.LogStreams, logstypes.LogStream{LogStreamName: aws.String(s)})
	}
	return out, nil
}

func (f *fakeLogs) FilterLogEvents(ctx context.Context, in *cloudwatchlogs.FilterLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error) {
	f.filterIn = append(f.filterIn, in)
	g := *in.LogGroupName
	if err := f.filterErr[g]; err != nil {
		return nil, err
	}
	if out, ok := f.events[g]; ok {
		return out, nil
	}
	return &cloudwatchlogs.FilterLogEventsOutput{}, nil
}

type fakeAthena struct {
	startIn  *athena.StartQueryExecutionInput
	states   []*athena.GetQueryExecutionOutput
	getN     int
	results  []*athena.GetQueryResultsOutput
	resultsN int
	startErr error
}

func (f *fakeAthena) StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.startIn = in
	if f.startErr != nil {
		return nil, f.startErr
	}
	qid := "q-1"
	return &athena.StartQueryExecutionOutput{QueryExecutionId: &qid}, nil
}

func (f *fakeAthena) GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	i := f.getN
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.getN++
	return f.states[i], nil
}

func (f *fakeAthena) GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	p := f.results[f.resultsN]
	f.resultsN++
	return p, nil
}

type fakeGlue struct {
	in  *glue.GetTableInput
	out *glue.GetTableOutput
	err error
}

func (f *fakeGlue) GetTable(ctx context.Context, in *glue.GetTableInput, _ ...func(*glue.Options)) (*glue.GetTableOutput, error) {
	f.in = in
	return f.out, f.err
}
