package awstools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

type InvokeResult struct {
	StatusCode      int32  `json:"status_code"`
	FunctionError   string `json:"function_error,omitempty"`
	ExecutedVersion string `json:"executed_version,omitempty"`
	Payload         any    `json:"payload"`
}

type FunctionSummary struct {
	Name         string `json:"name"`
	Runtime      string `json:"runtime,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Description  string `json:"description,omitempty"`
}

// InvokeLambda calls the function with payload encoded as JSON. invocationType
// defaults to RequestResponse.
func InvokeLambda(ctx context.Context, c LambdaClient, functionName string, payload any, invocationType string) (*InvokeResult, error) {
	functionName = strings.TrimSpace(functionName)
	if functionName == "" {
		return nil, fmt.Errorf("missing function name")
	}
	it, err := parseInvocationType(invocationType)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode lambda payload: %w", err)
	}

	out, err := c.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: it,
		Payload:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("lambda Invoke %s: %w", functionName, err)
	}

	return &InvokeResult{
		StatusCode:      out.StatusCode,
		FunctionError:   aws.ToString(out.FunctionError),
		ExecutedVersion: aws.ToString(out.ExecutedVersion),
		Payload:         decodeBody(out.Payload),
	}, nil
}

func parseInvocationType(s string) (lambdatypes.InvocationType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return lambdatypes.InvocationTypeRequestResponse, nil
	}
	for _, v := range lambdatypes.InvocationTypeRequestResponse.Values() {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid invocation type %q", s)
}

// GetLambdaCode returns the presigned URL of the function's deployment package.
func GetLambdaCode(ctx context.Context, c LambdaClient, functionName string) (string, error) {
	out, err := c.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(functionName),
	})
	if err != nil {
		return "", fmt.Errorf("lambda GetFunction %s: %w", functionName, err)
	}
	if out.Code == nil {
		return "", nil
	}
	if loc := aws.ToString(out.Code.Location); loc != "" {
		return loc, nil
	}
	// container image functions have no zip location
	return aws.ToString(out.Code.ImageUri), nil
}

func ListLambdas(ctx context.Context, c LambdaClient) ([]FunctionSummary, error) {
	out := make([]FunctionSummary, 0)
	p := lambda.NewListFunctionsPaginator(c, &lambda.ListFunctionsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("lambda ListFunctions: %w", err)
		}
		for _, f := range page.Functions {
			out = append(out, FunctionSummary{
				Name:         aws.ToString(f.FunctionName),
				Runtime:      string(f.Runtime),
				LastModified: aws.ToString(f.LastModified),
				Description:  aws.ToString(f.Description),
			})
		}
	}
	return out, nil
}

// decodeBody returns the JSON value of b, the raw string when b is not JSON,
// or nil when b is empty.
func decodeBody(b []byte) any {
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	return v
}
