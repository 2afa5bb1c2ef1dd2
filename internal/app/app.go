// Package app wires configuration, AWS clients, the tool registry, the
// approval hook and session storage into a ready Invoker.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"opsagent/internal/agent"
	"opsagent/internal/approval"
	"opsagent/internal/audit"
	"opsagent/internal/awstools"
	"opsagent/internal/config"
	"opsagent/internal/handlers"
	"opsagent/internal/llm"
	"opsagent/internal/logging"
	"opsagent/internal/session"
	"opsagent/internal/tools"
)

type App struct {
	Config   *config.Config
	AWS      aws.Config
	Clients  *awstools.Clients
	Registry *tools.Registry
	Trail    *audit.Trail
	Sessions session.Store
	Agent    *agent.Agent
	Invoker  *handlers.Invoker
}

// Override adjusts the loaded configuration before anything is built.
type Override func(*config.Config)

// Load reads AWS and process configuration, initialises logging and builds
// the App.
func Load(ctx context.Context, overrides ...Override) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	cfg, err := config.Load(ctx, awsCfg)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	return New(cfg, awsCfg, nil), nil
}

// New builds the App. model may be nil, in which case Bedrock is used.
func New(cfg *config.Config, awsCfg aws.Config, model llm.Model) *App {
	a := &App{Config: cfg, AWS: awsCfg}

	a.Clients = awstools.NewClients(awsCfg)
	if cfg.HTTPTimeout > 0 {
		a.Clients.API.HTTP = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	a.Registry = tools.NewAWSRegistry(a.Clients, ToolOptions(cfg))

	a.Trail = &audit.Trail{Bucket: cfg.AuditBucket, Prefix: cfg.AuditPrefix, Now: time.Now}
	if cfg.ApprovalTopicArn != "" {
		a.Trail.SNS = sns.NewFromConfig(awsCfg)
		a.Trail.TopicArn = cfg.ApprovalTopicArn
	}
	if cfg.AuditBucket != "" {
		a.Trail.S3 = s3.NewFromConfig(awsCfg)
	}

	if cfg.SessionTable != "" {
		ttl := time.Duration(cfg.SessionTTLSeconds) * time.Second
		a.Sessions = session.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionTable, ttl)
	} else {
		log.Warn("SESSION_TABLE not set, sessions are kept in memory")
		a.Sessions = session.NewMemoryStore()
	}

	if model == nil {
		model = llm.NewBedrock(bedrockruntime.NewFromConfig(awsCfg), cfg.ModelID, cfg.Temperature, cfg.MaxTokens)
	}
	a.Agent = agent.New(model, a.Registry,
		agent.WithSystemPrompt(cfg.SystemPrompt),
		agent.WithMaxIterations(cfg.MaxToolIterations),
		agent.WithHooks(approval.NewHook(a.Trail)),
	)
	a.Invoker = handlers.NewInvoker(a.Agent, a.Sessions, a.Trail)

	log.WithFields(log.Fields{
		"model_id":       cfg.ModelID,
		"tools":          len(a.Registry.List()),
		"session_table":  cfg.SessionTable,
		"athena_enabled": cfg.AthenaEnabled(),
	}).Info("agent ready")
	return a
}

// AthenaOptions maps the Athena settings onto query options.
func AthenaOptions(cfg *config.Config) awstools.AthenaRunOptions {
	return awstools.AthenaRunOptions{
		Database:       cfg.AthenaDatabase,
		Workgroup:      cfg.AthenaWorkgroup,
		OutputLocation: cfg.AthenaOutputS3,
		MaxResultRows:  cfg.AthenaMaxRows,
	}
}

func ToolOptions(cfg *config.Config) tools.AWSOptions {
	opt := tools.AWSOptions{AgentCoreLogPrefixes: cfg.AgentCoreLogPrefixes}
	if cfg.AthenaEnabled() {
		opt.Athena = AthenaOptions(cfg)
	}
	return opt
}
