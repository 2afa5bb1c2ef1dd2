package awstools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

var now = time.Now

type LogEvent struct {
	Timestamp     string `json:"timestamp"`
	Message       string `json:"message"`
	LogStreamName string `json:"logStreamName"`
}

type AgentCoreLogs struct {
	FoundLogGroups []string       `json:"found_log_groups"`
	Logs           map[string]any `json:"logs"`
}

func ListLogGroups(ctx context.Context, c LogsClient, prefix string) ([]string, error) {
	in := &cloudwatchlogs.DescribeLogGroupsInput{}
	if p := strings.TrimSpace(prefix); p != "" {
		in.LogGroupNamePrefix = aws.String(p)
	}
	out := make([]string, 0)
	p := cloudwatchlogs.NewDescribeLogGroupsPaginator(c, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("logs DescribeLogGroups: %w", err)
		}
		for _, g := range page.LogGroups {
			out = append(out, aws.ToString(g.LogGroupName))
		}
	}
	return out, nil
}

// ListLogStreams returns up to limit stream names, most recently written first.
func ListLogStreams(ctx context.Context, c LogsClient, logGroup string, limit int32) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	page, err := c.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(logGroup),
		OrderBy:      logstypes.OrderByLastEventTime,
		Descending:   aws.Bool(true),
		Limit:        aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("logs DescribeLogStreams %s: %w", logGroup, err)
	}
	out := make([]string, 0, len(page.LogStreams))
	for _, s := range page.LogStreams {
		out = append(out, aws.ToString(s.LogStreamName))
	}
	return out, nil
}

// GetLogs returns events from the last startMinutesAgo minutes, optionally
// restricted to one stream. Zero is an empty window; negative means 60.
func GetLogs(ctx context.Context, c LogsClient, logGroup, logStream string, startMinutesAgo int, limit int32) ([]LogEvent, error) {
	if startMinutesAgo < 0 {
		startMinutesAgo = 60
	}
	if limit <= 0 {
		limit = 100
	}
	end := now().UTC()
	start := end.Add(-time.Duration(startMinutesAgo) * time.Minute)

	in := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(logGroup),
		StartTime:    aws.Int64(start.UnixMilli()),
		EndTime:      aws.Int64(end.UnixMilli()),
		Limit:        aws.Int32(limit),
	}
	if s := strings.TrimSpace(logStream); s != "" {
		in.LogStreamNames = []string{s}
	}

	page, err := c.FilterLogEvents(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("logs FilterLogEvents %s: %w", logGroup, err)
	}
	out := make([]LogEvent, 0, len(page.Events))
	for _, e := range page.Events {
		out = append(out, LogEvent{
			Timestamp:     time.UnixMilli(aws.ToInt64(e.Timestamp)).UTC().Format("2006-01-02 15:04:05"),
			Message:       aws.ToString(e.Message),
			LogStreamName: aws.ToString(e.LogStreamName),
		})
	}
	return out, nil
}

// GetAgentCoreLogs collects recent events from every log group under the
// given prefixes. Blank prefixes are skipped. Enumeration failures for a prefix are ignored; fetch
// failures for a group are reported in place of its events.
func GetAgentCoreLogs(ctx context.Context, c LogsClient, prefixes []string, startMinutesAgo int, limit int32) (*AgentCoreLogs, error) {
	seen := map[string]bool{}
	groups := make([]string, 0)
	for _, p := range prefixes {
		if strings.TrimSpace(p) == "" {
			continue
		}
		found, err := ListLogGroups(ctx, c, p)
		if err != nil {
			continue
		}
		for _, g := range found {
			if !seen[g] {
				seen[g] = true
				groups = append(groups, g)
			}
		}
	}
	sort.Strings(groups)

	res := &AgentCoreLogs{FoundLogGroups: groups, Logs: map[string]any{}}
	for _, g := range groups {
		events, err := GetLogs(ctx, c, g, "", startMinutesAgo, limit)
		if err != nil {
			res.Logs[g] = "Error: " + err.Error()
			continue
		}
		if len(events) > 0 {
			res.Logs[g] = events
		}
	}
	return res, nil
}
