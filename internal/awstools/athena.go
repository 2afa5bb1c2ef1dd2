package awstools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/dustin/go-humanize"
)

type AthenaRunOptions struct {
	Database       string
	Workgroup      string
	OutputLocation string // s3://.../athena-results/
	MaxWait        time.Duration
	PollInterval   time.Duration
	MaxResultRows  int
}

type AthenaResult struct {
	QueryExecutionID string           `json:"query_id"`
	Columns          []string         `json:"columns"`
	Rows             []map[string]any `json:"rows"`
	ScannedBytes     int64            `json:"scanned_bytes"`
	Scanned          string           `json:"scanned"`
	ExecutionMs      int64            `json:"exec_ms"`
	Kind             string           `json:"kind"`
	Value            any              `json:"value,omitempty"`
}

type AthenaError struct {
	State            string
	Reason           string
	QueryExecutionID string
}

func (e *AthenaError) Error() string {
	if e.QueryExecutionID != "" {
		return fmt.Sprintf("athena %s: %s (qid=%s)", e.State, e.Reason, e.QueryExecutionID)
	}
	return fmt.Sprintf("athena %s: %s", e.State, e.Reason)
}

func (o *AthenaRunOptions) defaults() error {
	if strings.TrimSpace(o.Database) == "" {
		return fmt.Errorf("missing athena database")
	}
	if strings.TrimSpace(o.Workgroup) == "" {
		o.Workgroup = "primary"
	}
	if strings.TrimSpace(o.OutputLocation) == "" {
		return fmt.Errorf("missing athena output location")
	}
	if o.MaxWait == 0 {
		o.MaxWait = 25 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 700 * time.Millisecond
	}
	if o.MaxResultRows == 0 {
		o.MaxResultRows = 200
	}
	return nil
}

// StartAndWait starts sql and polls until it reaches a terminal state or
// opt.MaxWait elapses.
func StartAndWait(ctx context.Context, c AthenaClient, sql string, opt AthenaRunOptions) (*athenatypes.QueryExecution, error) {
	if err := opt.defaults(); err != nil {
		return nil, err
	}
	startOut, err := c.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(opt.Database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(opt.OutputLocation),
		},
		WorkGroup: aws.String(opt.Workgroup),
	})
	if err != nil {
		return nil, fmt.Errorf("athena StartQueryExecution: %w", err)
	}
	qid := aws.ToString(startOut.QueryExecutionId)

	deadline := time.Now().Add(opt.MaxWait)
	for {
		if time.Now().After(deadline) {
			return nil, &AthenaError{State: "TIMEOUT", Reason: "query timed out", QueryExecutionID: qid}
		}
		getOut, err := c.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return nil, fmt.Errorf("athena GetQueryExecution: %w", err)
		}
		exec := getOut.QueryExecution
		if exec == nil || exec.Status == nil {
			return nil, &AthenaError{State: "UNKNOWN", Reason: "missing query status", QueryExecutionID: qid}
		}

		switch exec.Status.State {
		case athenatypes.QueryExecutionStateSucceeded:
			if exec.QueryExecutionId == nil {
				exec.QueryExecutionId = aws.String(qid)
			}
			return exec, nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			reason := aws.ToString(exec.Status.StateChangeReason)
			return nil, &AthenaError{State: string(exec.Status.State), Reason: reason, QueryExecutionID: qid}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opt.PollInterval):
		}
	}
}

func RunAthenaQuery(ctx context.Context, c AthenaClient, sql string, opt AthenaRunOptions) (*AthenaResult, error) {
	if err := opt.defaults(); err != nil {
		return nil, err
	}
	exec, err := StartAndWait(ctx, c, sql, opt)
	if err != nil {
		return nil, err
	}
	qid := aws.ToString(exec.QueryExecutionId)

	// first row is the header
	var (
		nextToken *string
		allRows   []athenatypes.Row
		colInfo   []athenatypes.ColumnInfo
	)
	for {
		resOut, err := c.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(qid),
			NextToken:        nextToken,
			MaxResults:       aws.Int32(1000),
		})
		if err != nil {
			return nil, fmt.Errorf("athena GetQueryResults: %w", err)
		}
		if resOut.ResultSet != nil {
			if colInfo == nil && resOut.ResultSet.ResultSetMetadata != nil {
				colInfo = resOut.ResultSet.ResultSetMetadata.ColumnInfo
			}
			allRows = append(allRows, resOut.ResultSet.Rows...)
		}
		if aws.ToString(resOut.NextToken) == "" || len(allRows) > opt.MaxResultRows {
			break
		}
		nextToken = resOut.NextToken
	}

	cols := make([]string, 0, len(colInfo))
	for _, ci := range colInfo {
		cols = append(cols, aws.ToString(ci.Name))
	}

	outRows := make([]map[string]any, 0)
	for i, r := range allRows {
		if i == 0 {
			continue
		}
		if len(outRows) >= opt.MaxResultRows {
			break
		}
		m := map[string]any{}
		for ci, d := range r.Data {
			if ci >= len(cols) {
				continue
			}
			m[cols[ci]] = coerceScalar(aws.ToString(d.VarCharValue))
		}
		outRows = append(outRows, m)
	}

	var scanned, execMs int64
	if exec.Statistics != nil {
		scanned = aws.ToInt64(exec.Statistics.DataScannedInBytes)
		execMs = aws.ToInt64(exec.Statistics.EngineExecutionTimeInMillis)
	}

	res := &AthenaResult{
		QueryExecutionID: qid,
		Columns:          cols,
		Rows:             outRows,
		ScannedBytes:     scanned,
		Scanned:          humanize.Bytes(uint64(scanned)),
		ExecutionMs:      execMs,
	}
	res.shape()
	return res, nil
}

// shape marks single-cell results as scalars so the model can quote the
// value directly.
func (r *AthenaResult) shape() {
	if len(r.Rows) == 1 && len(r.Columns) == 1 {
		r.Kind = "scalar"
		r.Value = r.Rows[0][r.Columns[0]]
		return
	}
	r.Kind = "table"
}

func coerceScalar(v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
