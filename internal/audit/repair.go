package audit

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"

	"opsagent/internal/awstools"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type RepairResult struct {
	Ok        bool   `json:"ok"`
	QueryID   string `json:"query_id,omitempty"`
	State     string `json:"state,omitempty"`
	Database  string `json:"database,omitempty"`
	Table     string `json:"table,omitempty"`
	Workgroup string `json:"workgroup,omitempty"`
}

// RepairPartitions registers new dt= partitions of the audit table so the
// latest flushed decisions are queryable.
func RepairPartitions(ctx context.Context, c awstools.AthenaClient, table string, opt awstools.AthenaRunOptions) (*RepairResult, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	exec, err := awstools.StartAndWait(ctx, c, fmt.Sprintf("MSCK REPAIR TABLE %s", table), opt)
	if err != nil {
		return &RepairResult{Ok: false, Database: opt.Database, Table: table}, fmt.Errorf("repair %s: %w", table, err)
	}
	wg := opt.Workgroup
	if wg == "" {
		wg = "primary"
	}
	return &RepairResult{
		Ok:        true,
		QueryID:   aws.ToString(exec.QueryExecutionId),
		State:     string(exec.Status.State),
		Database:  opt.Database,
		Table:     table,
		Workgroup: wg,
	}, nil
}
