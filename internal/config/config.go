package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/kelseyhightower/envconfig"
)

const DefaultSystemPrompt = "Please respond flexibly according to the user's content."

// Config is the process configuration, read from the environment.
type Config struct {
	ModelID           string  `envconfig:"BEDROCK_MODEL_ID" default:"global.anthropic.claude-sonnet-4-20250514-v1:0"`
	Temperature       float32 `envconfig:"MODEL_TEMPERATURE" default:"0.7"`
	MaxTokens         int32   `envconfig:"MODEL_MAX_TOKENS" default:"4096"`
	SystemPrompt      string  `envconfig:"SYSTEM_PROMPT"`
	MaxToolIterations int     `envconfig:"MAX_TOOL_ITERATIONS" default:"20"`

	SessionTable      string `envconfig:"SESSION_TABLE"`
	SessionTTLSeconds int64  `envconfig:"SESSION_TTL_SECONDS" default:"3600"`

	ApprovalTopicArn string `envconfig:"APPROVAL_TOPIC_ARN"`
	AuditBucket      string `envconfig:"AUDIT_BUCKET"`
	AuditPrefix      string `envconfig:"AUDIT_PREFIX" default:"approval_audit/"`
	AuditTable       string `envconfig:"AUDIT_TABLE" default:"approval_audit"`

	AthenaDatabase  string `envconfig:"ATHENA_DATABASE"`
	AthenaWorkgroup string `envconfig:"ATHENA_WORKGROUP" default:"primary"`
	AthenaOutputS3  string `envconfig:"ATHENA_OUTPUT_S3"`
	AthenaMaxRows   int    `envconfig:"ATHENA_MAX_ROWS" default:"200"`

	HTTPTimeout          time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	AgentCoreLogPrefixes []string      `envconfig:"AGENT_CORE_LOG_PREFIXES" default:"/aws/bedrock,bedrock-agentcore,/ecs/,agent_simple"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	Port      int    `envconfig:"PORT" default:"8080"`

	SSMPrefix string `envconfig:"CONFIG_SSM_PREFIX"`
}

// FromEnv parses the environment without touching AWS.
func FromEnv() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load parses the environment and, when CONFIG_SSM_PREFIX is set, overlays
// values from SSM Parameter Store.
func Load(ctx context.Context, awsCfg aws.Config) (*Config, error) {
	c, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.SSMPrefix) != "" {
		if err := c.OverlaySSM(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelID) == "" {
		return fmt.Errorf("missing BEDROCK_MODEL_ID")
	}
	if c.MaxToolIterations <= 0 {
		return fmt.Errorf("MAX_TOOL_ITERATIONS must be positive, got %d", c.MaxToolIterations)
	}
	if c.SessionTTLSeconds <= 0 {
		c.SessionTTLSeconds = 3600
	}
	if c.AthenaDatabase != "" && !strings.HasPrefix(c.AthenaOutputS3, "s3://") {
		return fmt.Errorf("ATHENA_OUTPUT_S3 must start with s3:// when ATHENA_DATABASE is set")
	}
	return nil
}

// AthenaEnabled reports whether the analytics tools should be registered.
func (c *Config) AthenaEnabled() bool {
	return strings.TrimSpace(c.AthenaDatabase) != ""
}
