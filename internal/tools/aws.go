package tools

import (
	"context"
	"strings"

	"opsagent/internal/awstools"
)

// AWSOptions controls the optional parts of the AWS tool set.
type AWSOptions struct {
	AgentCoreLogPrefixes []string
	// Athena enables athena_query and glue_get_table when Database is set.
	Athena awstools.AthenaRunOptions
}

var DefaultAgentCoreLogPrefixes = []string{"/aws/bedrock", "bedrock-agentcore", "/ecs/", "agent_simple"}

// NewAWSRegistry registers one tool per AWS operation.
func NewAWSRegistry(c *awstools.Clients, opt AWSOptions) *Registry {
	r := NewRegistry()
	prefixes := opt.AgentCoreLogPrefixes
	if len(prefixes) == 0 {
		prefixes = DefaultAgentCoreLogPrefixes
	}

	list := []Tool{
		&Func{
			ToolName: "lambda_invoke",
			Desc:     "Invoke an AWS Lambda function with a JSON payload.",
			Params: []ParameterDef{
				{Name: "function_name", Type: "string", Description: "Function name or ARN", Required: true},
				{Name: "payload", Type: "object", Description: "JSON payload passed to the function", Required: true},
				{Name: "invocation_type", Type: "string", Description: "RequestResponse (default), Event or DryRun"},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				fn, err := a.String("function_name")
				if err != nil {
					return nil, err
				}
				payload, err := a.Map("payload")
				if err != nil {
					return nil, err
				}
				return awstools.InvokeLambda(ctx, c.Lambda, fn, payload, a.OptString("invocation_type", "RequestResponse"))
			},
		},
		&Func{
			ToolName: "lambda_get_code",
			Desc:     "Get the download URL of a Lambda function's source package.",
			Params: []ParameterDef{
				{Name: "function_name", Type: "string", Description: "Function name or ARN", Required: true},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				fn, err := a.String("function_name")
				if err != nil {
					return nil, err
				}
				return awstools.GetLambdaCode(ctx, c.Lambda, fn)
			},
		},
		&Func{
			ToolName: "lambda_list",
			Desc:     "List Lambda functions.",
			Fn: func(ctx context.Context, a Args) (any, error) {
				return awstools.ListLambdas(ctx, c.Lambda)
			},
		},
		&Func{
			ToolName: "dynamodb_create",
			Desc:     "Create an item in a DynamoDB table.",
			Params: []ParameterDef{
				{Name: "table_name", Type: "string", Description: "Table name", Required: true},
				{Name: "item", Type: "object", Description: "Item attributes as plain JSON", Required: true},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				table, err := a.String("table_name")
				if err != nil {
					return nil, err
				}
				item, err := a.Map("item")
				if err != nil {
					return nil, err
				}
				return awstools.CreateItem(ctx, c.Dynamo, table, item)
			},
		},
		&Func{
			ToolName: "dynamodb_read",
			Desc:     "Read an item from a DynamoDB table by its key.",
			Params: []ParameterDef{
				{Name: "table_name", Type: "string", Description: "Table name", Required: true},
				{Name: "key", Type: "object", Description: "Primary key attributes", Required: true},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				table, err := a.String("table_name")
				if err != nil {
					return nil, err
				}
				key, err := a.Map("key")
				if err != nil {
					return nil, err
				}
				return awstools.ReadItem(ctx, c.Dynamo, table, key)
			},
		},
		&Func{
			ToolName: "dynamodb_update",
			Desc:     "Update attributes of an item in a DynamoDB table.",
			Params: []ParameterDef{
				{Name: "table_name", Type: "string", Description: "Table name", Required: true},
				{Name: "key", Type: "object", Description: "Primary key attributes", Required: true},
				{Name: "updates", Type: "object", Description: "Attributes to set", Required: true},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				table, err := a.String("table_name")
				if err != nil {
					return nil, err
				}
				key, err := a.Map("key")
				if err != nil {
					return nil, err
				}
				updates, err := a.Map("updates")
				if err != nil {
					return nil, err
				}
				return awstools.UpdateItem(ctx, c.Dynamo, table, key, updates)
			},
		},
		&Func{
			ToolName: "dynamodb_query",
			Desc:     "Query a DynamoDB table with a key condition expression.",
			Params: []ParameterDef{
				{Name: "table_name", Type: "string", Description: "Table name", Required: true},
				{Name: "key_condition", Type: "string", Description: "KeyConditionExpression, e.g. \"pk = :pk\"", Required: true},
				{Name: "expr_attr_values", Type: "object", Description: "Values for the placeholders, e.g. {\":pk\": \"user#1\"}", Required: true},
				{Name: "expr_attr_names", Type: "object", Description: "Optional name placeholders, e.g. {\"#s\": \"status\"}"},
				{Name: "index_name", Type: "string", Description: "Optional secondary index"},
				{Name: "limit", Type: "integer", Description: "Optional maximum number of items"},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				table, err := a.String("table_name")
				if err != nil {
					return nil, err
				}
				cond, err := a.String("key_condition")
				if err != nil {
					return nil, err
				}
				values, err := a.Map("expr_attr_values")
				if err != nil {
					return nil, err
				}
				names, err := a.StringMap("expr_attr_names")
				if err != nil {
					return nil, err
				}
				limit, err := a.Int("limit", 0)
				if err != nil {
					return nil, err
				}
				return awstools.QueryItems(ctx, c.Dynamo, table, cond, values, awstools.QueryOptions{
					ExprAttrNames: names,
					IndexName:     a.OptString("index_name", ""),
					Limit:         int32(limit),
				})
			},
		},
		&Func{
			ToolName: "dynamodb_list",
			Desc:     "List DynamoDB tables.",
			Fn: func(ctx context.Context, a Args) (any, error) {
				return awstools.ListTables(ctx, c.Dynamo)
			},
		},
		&Func{
			ToolName: "api_execute",
			Desc:     "Send an HTTP request to an API endpoint and return its status and body.",
			Params: []ParameterDef{
				{Name: "api_url", Type: "string", Description: "Full endpoint URL", Required: true},
				{Name: "method", Type: "string", Description: "HTTP method, GET by default"},
				{Name: "headers", Type: "object", Description: "Request headers"},
				{Name: "params", Type: "object", Description: "Query string parameters"},
				{Name: "body", Type: "object", Description: "JSON request body"},
				{Name: "iam_auth", Type: "boolean", Description: "Sign the request with AWS SigV4 for IAM-authorized APIs"},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				u, err := a.String("api_url")
				if err != nil {
					return nil, err
				}
				headers, err := a.StringMap("headers")
				if err != nil {
					return nil, err
				}
				params, err := a.StringMap("params")
				if err != nil {
					return nil, err
				}
				return c.API.Execute(ctx, awstools.APIRequest{
					URL:     u,
					Method:  a.OptString("method", "GET"),
					Headers: headers,
					Params:  params,
					Body:    a["body"],
					IAMAuth: a.Bool("iam_auth", false),
				})
			},
		},
		&Func{
			ToolName: "api_list",
			Desc:     "List API Gateway REST, HTTP and WebSocket APIs.",
			Fn: func(ctx context.Context, a Args) (any, error) {
				return awstools.ListAPIs(ctx, c.RestAPI, c.HTTPAPI)
			},
		},
		&Func{
			ToolName: "cloudwatch_list_log_groups",
			Desc:     "List CloudWatch Logs log groups.",
			Params: []ParameterDef{
				{Name: "prefix", Type: "string", Description: "Optional log group name prefix"},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				return awstools.ListLogGroups(ctx, c.Logs, a.OptString("prefix", ""))
			},
		},
		&Func{
			ToolName: "cloudwatch_list_log_streams",
			Desc:     "List the most recently written log streams of a log group.",
			Params: []ParameterDef{
				{Name: "log_group_name", Type: "string", Description: "Log group name", Required: true},
				{Name: "limit", Type: "integer", Description: "Maximum streams, 10 by default"},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				group, err := a.String("log_group_name")
				if err != nil {
					return nil, err
				}
				limit, err := a.Int("limit", 10)
				if err != nil {
					return nil, err
				}
				return awstools.ListLogStreams(ctx, c.Logs, group, int32(limit))
			},
		},
		&Func{
			ToolName: "cloudwatch_get_logs",
			Desc:     "Get recent log events from a log group, optionally from one stream.",
			Params: []ParameterDef{
				{Name: "log_group_name", Type: "string", Description: "Log group name", Required: true},
				{Name: "log_stream_name", Type: "string", Description: "Optional log stream name"},
				{Name: "start_time_minutes_ago", Type: "integer", Description: "How far back to look, 60 by default"},
				{Name: "limit", Type: "integer", Description: "Maximum events, 100 by default"},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				group, err := a.String("log_group_name")
				if err != nil {
					return nil, err
				}
				minutes, limit, err := window(a)
				if err != nil {
					return nil, err
				}
				return awstools.GetLogs(ctx, c.Logs, group, a.OptString("log_stream_name", ""), minutes, int32(limit))
			},
		},
		&Func{
			ToolName: "cloudwatch_get_agent_core_logs",
			Desc:     "Get recent logs of the agent runtime itself (Bedrock, AgentCore and container log groups).",
			Params: []ParameterDef{
				{Name: "start_time_minutes_ago", Type: "integer", Description: "How far back to look, 60 by default"},
				{Name: "limit", Type: "integer", Description: "Maximum events per log group, 100 by default"},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				minutes, limit, err := window(a)
				if err != nil {
					return nil, err
				}
				return awstools.GetAgentCoreLogs(ctx, c.Logs, prefixes, minutes, int32(limit))
			},
		},
	}

	if strings.TrimSpace(opt.Athena.Database) != "" {
		list = append(list, athenaTools(c, opt.Athena)...)
	}

	for _, t := range list {
		_ = r.Register(t) // names are fixed and unique
	}
	return r
}

func athenaTools(c *awstools.Clients, athenaOpt awstools.AthenaRunOptions) []Tool {
	return []Tool{
		&Func{
			ToolName: "athena_query",
			Desc:     "Run an Athena SQL query against database " + athenaOpt.Database + " and return the rows.",
			Params: []ParameterDef{
				{Name: "sql", Type: "string", Description: "A single SQL statement", Required: true},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				sql, err := a.String("sql")
				if err != nil {
					return nil, err
				}
				return awstools.RunAthenaQuery(ctx, c.Athena, sql, athenaOpt)
			},
		},
		&Func{
			ToolName: "glue_get_table",
			Desc:     "Describe the columns and partitions of a Glue catalog table.",
			Params: []ParameterDef{
				{Name: "table", Type: "string", Description: "Table name", Required: true},
				{Name: "database", Type: "string", Description: "Database, defaults to " + athenaOpt.Database},
			},
			Fn: func(ctx context.Context, a Args) (any, error) {
				table, err := a.String("table")
				if err != nil {
					return nil, err
				}
				schema, err := awstools.GetTableSchema(ctx, c.Glue, a.OptString("database", athenaOpt.Database), table)
				if err != nil {
					return nil, err
				}
				return schema.CompactText(), nil
			},
		},
	}
}

func window(a Args) (int, int, error) {
	minutes, err := a.Int("start_time_minutes_ago", 60)
	if err != nil {
		return 0, 0, err
	}
	limit, err := a.Int("limit", 100)
	if err != nil {
		return 0, 0, err
	}
	return minutes, limit, nil
}
