package main

import (
	"context"
	"errors"
	"os"

	"github.com/apex/log"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"

	"opsagent/internal/app"
	"opsagent/internal/audit"
	"opsagent/internal/config"
	"opsagent/internal/logging"
)

func main() {
	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.WithError(err).Error("load aws config")
		os.Exit(1)
	}
	cfg, err := config.Load(ctx, awsCfg)
	if err != nil {
		log.WithError(err).Error("load config")
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	ath := athena.NewFromConfig(awsCfg)
	lambda.Start(func(ctx context.Context) (*audit.RepairResult, error) {
		if !cfg.AthenaEnabled() {
			return &audit.RepairResult{Ok: false}, errors.New("ATHENA_DATABASE is required")
		}
		res, err := audit.RepairPartitions(ctx, ath, cfg.AuditTable, app.AthenaOptions(cfg))
		if err != nil {
			log.WithError(err).WithField("table", cfg.AuditTable).Error("repair failed")
			return res, err
		}
		log.WithFields(log.Fields{"table": res.Table, "query_id": res.QueryID}).Info("partitions repaired")
		return res, nil
	})
}
