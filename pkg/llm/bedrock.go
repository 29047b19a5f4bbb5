package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"chat-relay-go/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// bedrockClient 通过 Bedrock Converse API 调用模型。
type bedrockClient struct {
	runtime *bedrockruntime.Client
}

// NewBedrockClient loads credentials from the shared AWS profile and builds a
// client. It is used as the session factory: after an external credential
// refresh rewrites the profile, calling it again picks up the new keys.
func NewBedrockClient(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &bedrockClient{runtime: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// toConverse splits system turns out, since Converse only accepts user and
// assistant roles in Messages.
func toConverse(req Request) ([]types.SystemContentBlock, []types.Message, error) {
	var system []types.SystemContentBlock
	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			for _, p := range m.Content {
				if p.Image == nil {
					system = append(system, &types.SystemContentBlockMemberText{Value: p.Text})
				}
			}
			continue
		}
		blocks := make([]types.ContentBlock, 0, len(m.Content))
		for _, p := range m.Content {
			if p.Image == nil {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: p.Text})
				continue
			}
			img, err := toImageBlock(p.Image)
			if err != nil {
				return nil, nil, err
			}
			blocks = append(blocks, img)
		}
		messages = append(messages, types.Message{Role: types.ConversationRole(m.Role), Content: blocks})
	}
	return system, messages, nil
}

func toImageBlock(img *Image) (types.ContentBlock, error) {
	raw, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	format := strings.TrimPrefix(img.MediaType, "image/")
	if format == "jpg" {
		format = "jpeg"
	}
	return &types.ContentBlockMemberImage{Value: types.ImageBlock{
		Format: types.ImageFormat(format),
		Source: &types.ImageSourceMemberBytes{Value: raw},
	}}, nil
}

func inferenceConfig(g GenerationParams) *types.InferenceConfiguration {
	ic := &types.InferenceConfiguration{}
	if g.MaxTokens > 0 {
		ic.MaxTokens = aws.Int32(int32(g.MaxTokens))
	}
	if g.Temperature != 0 {
		ic.Temperature = aws.Float32(float32(g.Temperature))
	}
	if g.TopP != 0 {
		ic.TopP = aws.Float32(float32(g.TopP))
	}
	return ic
}

// Complete 使用 Converse 一次性返回完整回答。
func (c *bedrockClient) Complete(ctx context.Context, req Request) (string, error) {
	system, messages, err := toConverse(req)
	if err != nil {
		return "", err
	}
	out, err := c.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          system,
		Messages:        messages,
		InferenceConfig: inferenceConfig(req.Generation),
	})
	if err != nil {
		return "", fmt.Errorf("bedrock converse failed: %w", err)
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("bedrock converse returned no message")
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	return sb.String(), nil
}

// Stream 使用 ConverseStream，按生成顺序转发 contentBlockDelta 中的文本。
func (c *bedrockClient) Stream(ctx context.Context, req Request) (<-chan Delta, error) {
	system, messages, err := toConverse(req)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(req.Model),
		System:          system,
		Messages:        messages,
		InferenceConfig: inferenceConfig(req.Generation),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock converse stream failed: %w", err)
	}
	stream := out.GetStream()
	if stream == nil {
		return nil, errors.New("no stream available in response")
	}

	ch := make(chan Delta)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(d Delta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		stopped := false
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-stream.Events():
				if !ok {
					if err := stream.Err(); err != nil {
						send(Delta{Err: fmt.Errorf("bedrock stream failed: %w", err)})
					} else if !stopped {
						send(Delta{Err: fmt.Errorf("bedrock stream closed before messageStop: %w", io.ErrUnexpectedEOF)})
					}
					return
				}
				switch v := event.(type) {
				case *types.ConverseStreamOutputMemberContentBlockDelta:
					if text, ok := v.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && text.Value != "" {
						if !send(Delta{Text: text.Value}) {
							return
						}
					}
				case *types.ConverseStreamOutputMemberMessageStop:
					stopped = true
				}
			}
		}
	}()
	return ch, nil
}
