package config

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type SSMClient interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

var _ SSMClient = (*ssm.Client)(nil)

// OverlaySSM reads every parameter under SSMPrefix and overrides the fields it
// knows about. Names are matched on their last path segment.
func (c *Config) OverlaySSM(ctx context.Context, client SSMClient) error {
	prefix := "/" + strings.Trim(strings.TrimSpace(c.SSMPrefix), "/")

	var next *string
	for {
		out, err := client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(true),
			NextToken:      next,
		})
		if err != nil {
			return fmt.Errorf("ssm GetParametersByPath %s: %w", prefix, err)
		}
		for _, p := range out.Parameters {
			c.apply(path.Base(aws.ToString(p.Name)), aws.ToString(p.Value))
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		next = out.NextToken
	}
	return c.Validate()
}

func (c *Config) apply(name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	switch name {
	case "system_prompt":
		c.SystemPrompt = value
	case "model_id":
		c.ModelID = value
	case "approval_topic_arn":
		c.ApprovalTopicArn = value
	}
}
