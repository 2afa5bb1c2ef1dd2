package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type BedrockClient interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

var _ BedrockClient = (*bedrockruntime.Client)(nil)

// Bedrock is a Model backed by the Bedrock Converse streaming API.
type Bedrock struct {
	Client      BedrockClient
	ModelID     string
	Temperature float32
	MaxTokens   int32
}

func NewBedrock(client BedrockClient, modelID string, temperature float32, maxTokens int32) *Bedrock {
	return &Bedrock{Client: client, ModelID: modelID, Temperature: temperature, MaxTokens: maxTokens}
}

func (b *Bedrock) Converse(ctx context.Context, req Request, onText func(string)) (*Response, error) {
	in, err := b.input(req)
	if err != nil {
		return nil, err
	}
	out, err := b.Client.ConverseStream(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("bedrock ConverseStream: %w", err)
	}
	stream := out.GetStream()
	defer stream.Close()

	res, err := collectStream(stream.Events(), onText)
	if err != nil {
		return nil, err
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("bedrock ConverseStream: %w", err)
	}
	return res, nil
}

func (b *Bedrock) input(req Request) (*bedrockruntime.ConverseStreamInput, error) {
	msgs, err := toBedrockMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(b.ModelID),
		Messages: msgs,
		InferenceConfig: &brtypes.InferenceConfiguration{
			Temperature: aws.Float32(b.Temperature),
		},
	}
	if b.MaxTokens > 0 {
		in.InferenceConfig.MaxTokens = aws.Int32(b.MaxTokens)
	}
	if s := strings.TrimSpace(req.System); s != "" {
		in.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: s}}
	}
	if len(req.Tools) > 0 {
		cfg := &brtypes.ToolConfiguration{}
		for _, t := range req.Tools {
			cfg.Tools = append(cfg.Tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.InputSchema)},
			}})
		}
		in.ToolConfig = cfg
	}
	return in, nil
}

func toBedrockMessages(msgs []Message) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		var role brtypes.ConversationRole
		switch m.Role {
		case RoleUser:
			role = brtypes.ConversationRoleUser
		case RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}

		content := make([]brtypes.ContentBlock, 0, len(m.Content))
		for _, c := range m.Content {
			switch {
			case c.ToolUse != nil:
				input := c.ToolUse.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(c.ToolUse.ID),
					Name:      aws.String(c.ToolUse.Name),
					Input:     document.NewLazyDocument(input),
				}})
			case c.ToolResult != nil:
				status := brtypes.ToolResultStatusSuccess
				if c.ToolResult.Status == ToolResultError {
					status = brtypes.ToolResultStatusError
				}
				content = append(content, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(c.ToolResult.ToolUseID),
					Status:    status,
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: c.ToolResult.Content},
					},
				}})
			case c.Text != "":
				content = append(content, &brtypes.ContentBlockMemberText{Value: c.Text})
			}
		}
		if len(content) == 0 {
			continue
		}
		// Converse requires alternating roles.
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, content...)
			continue
		}
		out = append(out, brtypes.Message{Role: role, Content: content})
	}
	return out, nil
}

type blockBuilder struct {
	text    strings.Builder
	toolUse *ToolUse
	input   strings.Builder
}

// collectStream folds ConverseStream events into one assistant message.
func collectStream(events <-chan brtypes.ConverseStreamOutput, onText func(string)) (*Response, error) {
	blocks := map[int32]*blockBuilder{}
	block := func(idx *int32) *blockBuilder {
		i := aws.ToInt32(idx)
		b, ok := blocks[i]
		if !ok {
			b = &blockBuilder{}
			blocks[i] = b
		}
		return b
	}

	res := &Response{Message: Message{Role: RoleAssistant}}
	for ev := range events {
		switch e := ev.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if tu, ok := e.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				block(e.Value.ContentBlockIndex).toolUse = &ToolUse{
					ID:   aws.ToString(tu.Value.ToolUseId),
					Name: aws.ToString(tu.Value.Name),
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			b := block(e.Value.ContentBlockIndex)
			switch d := e.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				b.text.WriteString(d.Value)
				if onText != nil && d.Value != "" {
					onText(d.Value)
				}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				b.input.WriteString(aws.ToString(d.Value.Input))
			}
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			res.StopReason = StopReason(e.Value.StopReason)
		case *brtypes.ConverseStreamOutputMemberMetadata:
			if u := e.Value.Usage; u != nil {
				res.Usage = Usage{InputTokens: aws.ToInt32(u.InputTokens), OutputTokens: aws.ToInt32(u.OutputTokens)}
			}
		}
	}

	idx := make([]int32, 0, len(blocks))
	for i := range blocks {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })

	for _, i := range idx {
		b := blocks[i]
		if b.toolUse != nil {
			tu := *b.toolUse
			tu.Input = map[string]any{}
			if raw := strings.TrimSpace(b.input.String()); raw != "" {
				if err := json.Unmarshal([]byte(raw), &tu.Input); err != nil {
					return nil, fmt.Errorf("decode tool input for %s: %w", tu.Name, err)
				}
			}
			res.Message.Content = append(res.Message.Content, ContentBlock{ToolUse: &tu})
			continue
		}
		if b.text.Len() > 0 {
			res.Message.Content = append(res.Message.Content, TextBlock(b.text.String()))
		}
	}
	return res, nil
}
