package audit

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"opsagent/internal/approval"
)

type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	_ SNSClient = (*sns.Client)(nil)
	_ S3Client  = (*s3.Client)(nil)
)

const (
	EventRequested = "requested"
	EventDecided   = "decided"
)

// Row matches the columns of the approval audit Glue table.
type Row struct {
	Event       string `parquet:"name=event, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SessionID   string `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	InterruptID string `parquet:"name=interrupt_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ToolUseID   string `parquet:"name=tool_use_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ToolName    string `parquet:"name=tool_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ToolInput   string `parquet:"name=tool_input, type=BYTE_ARRAY, convertedtype=UTF8"` // JSON
	Response    string `parquet:"name=response, type=BYTE_ARRAY, convertedtype=UTF8"`
	Approved    bool   `parquet:"name=approved, type=BOOLEAN"`
	OccurredAt  int64  `parquet:"name=occurred_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Trail records approval activity. Requests are announced on SNS right
// away; all activity is buffered and written to S3 as Parquet on Flush.
type Trail struct {
	SNS      SNSClient
	TopicArn string
	S3       S3Client
	Bucket   string
	Prefix   string
	Now      func() time.Time

	mu   sync.Mutex
	rows []Row
}

func (t *Trail) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

func (t *Trail) add(r Row) {
	t.mu.Lock()
	t.rows = append(t.rows, r)
	t.mu.Unlock()
}

// Pending returns the number of buffered rows.
func (t *Trail) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

func (t *Trail) Requested(ctx context.Context, r approval.Request) {
	input := encodeInput(r.Reason.ToolInput)
	t.add(Row{
		Event:       EventRequested,
		SessionID:   r.SessionID,
		InterruptID: r.InterruptID,
		ToolUseID:   r.ToolUseID,
		ToolName:    r.Reason.ToolName,
		ToolInput:   input,
		OccurredAt:  r.RaisedAt.UnixMilli(),
	})

	if t.SNS == nil || strings.TrimSpace(t.TopicArn) == "" {
		return
	}
	if err := t.notify(ctx, r); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"session_id":   r.SessionID,
			"interrupt_id": r.InterruptID,
		}).Warn("approval notification failed")
	}
}

func (t *Trail) notify(ctx context.Context, r approval.Request) error {
	body, err := json.Marshal(map[string]any{
		"session_id":   r.SessionID,
		"interrupt_id": r.InterruptID,
		"tool_name":    r.Reason.ToolName,
		"tool_input":   r.Reason.ToolInput,
		"message":      r.Reason.Message,
		"raised_at":    r.RaisedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	// SNS subjects are limited to 100 characters
	subject := "Approval required: " + r.Reason.ToolName
	if len(subject) > 100 {
		subject = subject[:100]
	}

	_, err = t.SNS.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(t.TopicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"tool_name": {DataType: aws.String("String"), StringValue: aws.String(r.Reason.ToolName)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns Publish: %w", err)
	}
	return nil
}

func (t *Trail) Decided(ctx context.Context, d approval.Decision) {
	t.add(Row{
		Event:       EventDecided,
		SessionID:   d.SessionID,
		InterruptID: d.InterruptID,
		ToolUseID:   d.ToolUseID,
		ToolName:    d.ToolName,
		ToolInput:   encodeInput(d.ToolInput),
		Response:    d.Response,
		Approved:    d.Approved,
		OccurredAt:  d.DecidedAt.UnixMilli(),
	})
}

// Flush writes the buffered rows as one Parquet object under
// <prefix>dt=YYYY-MM-DD/ and clears the buffer. Without a bucket the rows
// are dropped. On failure the rows stay buffered for the next Flush.
func (t *Trail) Flush(ctx context.Context) error {
	t.mu.Lock()
	rows := t.rows
	t.rows = nil
	t.mu.Unlock()

	if len(rows) == 0 || t.S3 == nil || strings.TrimSpace(t.Bucket) == "" {
		return nil
	}

	data, err := encodeParquet(rows)
	if err != nil {
		t.requeue(rows)
		return err
	}

	key := fmt.Sprintf("%sdt=%s/part-%s.parquet", ensureTrailingSlash(t.Prefix), t.now().Format("2006-01-02"), randHex(8))
	_, err = t.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		t.requeue(rows)
		return fmt.Errorf("s3 PutObject %s: %w", key, err)
	}
	log.WithFields(log.Fields{"key": key, "rows": len(rows)}).Info("audit flushed")
	return nil
}

// requeue puts rows back ahead of anything buffered since they were taken.
func (t *Trail) requeue(rows []Row) {
	t.mu.Lock()
	t.rows = append(rows, t.rows...)
	t.mu.Unlock()
}

func encodeParquet(rows []Row) ([]byte, error) {
	localPath := filepath.Join(os.TempDir(), "approval_audit_"+randHex(8)+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return nil, fmt.Errorf("parquet file writer: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(Row), 1)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return nil, fmt.Errorf("parquet write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read parquet tmp: %w", err)
	}
	return data, nil
}

func encodeInput(in map[string]any) string {
	if in == nil {
		return "{}"
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
