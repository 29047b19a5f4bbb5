package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chat-relay-go/internal/config"
)

// openAIClient 调用 OpenAI 兼容的 /chat/completions 接口。
type openAIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAIClient creates a Client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg config.LLMConfig) Client {
	return &openAIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{},
	}
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *chatError `json:"error,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *chatError `json:"error,omitempty"`
}

func toChatRequest(req Request, stream bool) chatRequest {
	body := chatRequest{Model: req.Model, Stream: stream, Messages: make([]chatMessage, 0, len(req.Messages))}
	for _, m := range req.Messages {
		msg := chatMessage{Role: m.Role, Content: make([]chatContentPart, 0, len(m.Content))}
		for _, p := range m.Content {
			if p.Image != nil {
				msg.Content = append(msg.Content, chatContentPart{
					Type:     "image_url",
					ImageURL: &chatImageURL{URL: "data:" + p.Image.MediaType + ";base64," + p.Image.Data},
				})
				continue
			}
			msg.Content = append(msg.Content, chatContentPart{Type: "text", Text: p.Text})
		}
		body.Messages = append(body.Messages, msg)
	}
	// 零值表示使用后端默认值
	if g := req.Generation; g.Temperature != 0 {
		body.Temperature = &g.Temperature
	}
	if g := req.Generation; g.TopP != 0 {
		body.TopP = &g.TopP
	}
	if g := req.Generation; g.MaxTokens != 0 {
		body.MaxTokens = &g.MaxTokens
	}
	return body
}

// do 每次调用都重新编码请求体，重试时不会复用已被读取的 body。
func (c *openAIClient) do(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	reqBytes, err := json.Marshal(toChatRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp, nil
}

// Complete 发送非流式请求并返回完整回答。
func (c *openAIClient) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.do(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var completion chatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("chat api error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// Stream 发送流式请求，解析 SSE 中的 "data: " 行直到 [DONE]。
func (c *openAIClient) Stream(ctx context.Context, req Request) (<-chan Delta, error) {
	resp, err := c.do(ctx, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan Delta)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(d Delta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && !(err == io.EOF && line != "") {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				if ctx.Err() == nil {
					send(Delta{Err: fmt.Errorf("failed to read from stream: %w", err)})
				}
				return
			}

			data, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				send(Delta{Err: fmt.Errorf("chat api stream error: %s", chunk.Error.Message)})
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(Delta{Text: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
	}()
	return ch, nil
}
