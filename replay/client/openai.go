// Package client issues replayed requests to an OpenAI-compatible endpoint.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/inference-sim/inference-replay/replay"
)

// Response headers set by the gateway in front of the inference pods.
const (
	headerRoutingStrategy = "routing-strategy"
	headerTargetPod       = "target-pod"
	headerRequestID       = "request-id"
)

// Config holds the connection settings of an OpenAIClient.
type Config struct {
	Endpoint        string        // server root; "/v1" is appended
	APIKey          string        // bearer token (empty = none)
	MaxRetries      int           // retries per request on retryable failures
	Timeout         time.Duration // per-request timeout (0 = none)
	RoutingStrategy string        // sent as the routing-strategy header when non-empty
}

// OpenAIClient implements replay.Issuer with chat completions.
type OpenAIClient struct {
	client openai.Client
}

var _ replay.Issuer = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for cfg.Endpoint.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("client: endpoint must not be empty")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("client: max retries must be >= 0, got %d", cfg.MaxRetries)
	}
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.Endpoint, "/") + "/v1"),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.RoutingStrategy != "" {
		opts = append(opts, option.WithHeader(headerRoutingStrategy, cfg.RoutingStrategy))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}, nil
}

// Complete sends a non-streamed chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req replay.IssueRequest) (*replay.Completion, error) {
	var httpResp *http.Response
	completion, err := c.client.Chat.Completions.New(ctx, chatParams(req, false), option.WithResponseInto(&httpResp))
	if err != nil {
		return nil, classify(err)
	}
	var text string
	if len(completion.Choices) > 0 {
		text = completion.Choices[0].Message.Content
	}
	return &replay.Completion{
		Text: text,
		Usage: replay.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
		Routing: routingFrom(httpResp),
	}, nil
}

// Stream sends a streamed chat completion with usage reporting enabled.
// Request failures surface from the returned stream's Err.
func (c *OpenAIClient) Stream(ctx context.Context, req replay.IssueRequest) (replay.ChunkStream, error) {
	s := &chatStream{}
	s.stream = c.client.Chat.Completions.NewStreaming(ctx, chatParams(req, true), option.WithResponseInto(&s.resp))
	return s, nil
}

func chatParams(req replay.IssueRequest, streaming bool) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == replay.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(m.Content))
	}
	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(req.Model),
		Temperature: openai.Float(0),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxOutputTokens)
	}
	if streaming {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	}
	return params
}

// chatStream adapts an SSE chat completion stream to replay.ChunkStream.
type chatStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	resp    *http.Response
	current replay.Chunk
}

func (s *chatStream) Next() bool {
	if !s.stream.Next() {
		return false
	}
	chunk := s.stream.Current()
	s.current = replay.Chunk{}
	if len(chunk.Choices) > 0 {
		s.current.Content = chunk.Choices[0].Delta.Content
	}
	// The usage chunk arrives last, with an empty choices list.
	if chunk.Usage.TotalTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		s.current.Usage = &replay.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	return true
}

func (s *chatStream) Chunk() replay.Chunk {
	return s.current
}

func (s *chatStream) Err() error {
	return classify(s.stream.Err())
}

func (s *chatStream) Routing() replay.RoutingInfo {
	return routingFrom(s.resp)
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}

func routingFrom(resp *http.Response) replay.RoutingInfo {
	if resp == nil {
		return replay.RoutingInfo{}
	}
	return replay.RoutingInfo{
		TargetPod:       resp.Header.Get(headerTargetPod),
		TargetRequestID: resp.Header.Get(headerRequestID),
	}
}

// classify wraps err in a replay.IssueError naming its kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		apiErr *openai.Error
		netErr net.Error
	)
	switch {
	case errors.As(err, &apiErr):
		return &replay.IssueError{Kind: replay.ErrorKindAPI, StatusCode: apiErr.StatusCode, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &replay.IssueError{Kind: replay.ErrorKindTimeout, Err: err}
	default:
		return &replay.IssueError{Kind: replay.ErrorKindTransport, Err: err}
	}
}
