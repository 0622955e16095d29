/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package watsonx

import (
	"context"
	"strconv"
	"strings"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/utils/httpclient"
	"github.com/rulego/rulego-connectors/utils/json"
)

// Operations.
const (
	OperationTextGeneration          = "textGeneration"
	OperationTextGenerationStreaming = "textGenerationStreaming"
	OperationChat                    = "chat"
	OperationEmbedding               = "embedding"
	OperationTokenize                = "tokenize"
)

var operations = map[string]operation{
	OperationTextGeneration:          textGeneration,
	OperationTextGenerationStreaming: textGenerationStreaming,
	OperationChat:                    chat,
	OperationEmbedding:               embedding,
	OperationTokenize:                tokenize,
}

// StreamHandler receives every generated chunk of a streaming generation.
// An error stops the stream.
type StreamHandler = func(exchange *types.Exchange, chunk string) error

// request is the state shared by operations for one exchange.
type request struct {
	client   *Client
	config   *Configuration
	modelId  string
	exchange *types.Exchange
	handler  StreamHandler
}

type operation func(ctx context.Context, r *request) error

type generationRequest struct {
	ModelId    string         `json:"model_id"`
	Input      string         `json:"input"`
	ProjectId  string         `json:"project_id,omitempty"`
	SpaceId    string         `json:"space_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type generationResult struct {
	GeneratedText       string `json:"generated_text"`
	GeneratedTokenCount int    `json:"generated_token_count"`
	InputTokenCount     int    `json:"input_token_count"`
	StopReason          string `json:"stop_reason"`
}

type generationResponse struct {
	ModelId string             `json:"model_id"`
	Results []generationResult `json:"results"`
}

func (r *request) generationRequest() generationRequest {
	c := r.config
	params := map[string]any{}
	if c.DecodingMethod != "" {
		params["decoding_method"] = c.DecodingMethod
	}
	if c.MaxNewTokens > 0 {
		params["max_new_tokens"] = c.MaxNewTokens
	}
	if c.MinNewTokens > 0 {
		params["min_new_tokens"] = c.MinNewTokens
	}
	if c.Temperature > 0 {
		params["temperature"] = c.Temperature
	}
	if c.TopP > 0 {
		params["top_p"] = c.TopP
	}
	if c.TopK > 0 {
		params["top_k"] = c.TopK
	}
	if c.RepetitionPenalty > 0 {
		params["repetition_penalty"] = c.RepetitionPenalty
	}
	return generationRequest{
		ModelId:    r.modelId,
		Input:      r.exchange.In.Body,
		ProjectId:  c.ProjectId,
		SpaceId:    c.SpaceId,
		Parameters: params,
	}
}

func (r *request) setTokenHeaders(generated, input int, stopReason string) {
	headers := r.exchange.In.Headers
	headers.PutValue(HeaderGeneratedTokenCount, strconv.Itoa(generated))
	headers.PutValue(HeaderInputTokenCount, strconv.Itoa(input))
	if stopReason != "" {
		headers.PutValue(HeaderStopReason, stopReason)
	}
}

func (r *request) setText(text string) {
	r.exchange.In.Body = text
	r.exchange.In.DataType = types.TEXT
}

func (r *request) setJson(v any) error {
	s, err := json.MarshalString(v)
	if err != nil {
		return err
	}
	r.exchange.In.Body = s
	r.exchange.In.DataType = types.JSON
	return nil
}

func textGeneration(ctx context.Context, r *request) error {
	var resp generationResponse
	if err := r.client.PostJson(ctx, "/ml/v1/text/generation", r.generationRequest(), &resp); err != nil {
		return err
	}
	var text strings.Builder
	var generated, input int
	var stopReason string
	for _, result := range resp.Results {
		text.WriteString(result.GeneratedText)
		generated += result.GeneratedTokenCount
		input += result.InputTokenCount
		stopReason = result.StopReason
	}
	r.setTokenHeaders(generated, input, stopReason)
	r.setText(text.String())
	return nil
}

func textGenerationStreaming(ctx context.Context, r *request) error {
	resp, err := r.client.Post(ctx, "/ml/v1/text/generation_stream", r.generationRequest(), true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var text strings.Builder
	var generated, input int
	var stopReason string
	err = httpclient.ReadEvents(resp.Body, func(field, value string) error {
		if field != "data" {
			return nil
		}
		var chunk generationResponse
		if err := json.Unmarshal([]byte(value), &chunk); err != nil {
			return err
		}
		for _, result := range chunk.Results {
			text.WriteString(result.GeneratedText)
			if result.GeneratedTokenCount > generated {
				generated = result.GeneratedTokenCount
			}
			if result.InputTokenCount > input {
				input = result.InputTokenCount
			}
			if result.StopReason != "" && result.StopReason != "not_finished" {
				stopReason = result.StopReason
			}
			if r.handler != nil && result.GeneratedText != "" {
				if err := r.handler(r.exchange, result.GeneratedText); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.setTokenHeaders(generated, input, stopReason)
	r.setText(text.String())
	return nil
}

// ChatMessage is one message of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	ModelId     string        `json:"model_id"`
	ProjectId   string        `json:"project_id,omitempty"`
	SpaceId     string        `json:"space_id,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// chatMessages reads a json array of messages from the body, or takes the
// body as the user message.
func (r *request) chatMessages() []ChatMessage {
	body := strings.TrimSpace(r.exchange.In.Body)
	if strings.HasPrefix(body, "[") {
		var messages []ChatMessage
		if err := json.Unmarshal([]byte(body), &messages); err == nil {
			return messages
		}
	}
	var messages []ChatMessage
	if r.config.SystemMessage != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: r.config.SystemMessage})
	}
	return append(messages, ChatMessage{Role: "user", Content: r.exchange.In.Body})
}

func chat(ctx context.Context, r *request) error {
	req := chatRequest{
		ModelId:     r.modelId,
		ProjectId:   r.config.ProjectId,
		SpaceId:     r.config.SpaceId,
		Messages:    r.chatMessages(),
		MaxTokens:   r.config.MaxNewTokens,
		Temperature: r.config.Temperature,
		TopP:        r.config.TopP,
	}
	var resp chatResponse
	if err := r.client.PostJson(ctx, "/ml/v1/text/chat", req, &resp); err != nil {
		return err
	}
	var content, finishReason string
	if len(resp.Choices) > 0 {
		content, finishReason = resp.Choices[0].Message.Content, resp.Choices[0].FinishReason
	}
	r.setTokenHeaders(resp.Usage.CompletionTokens, resp.Usage.PromptTokens, finishReason)
	r.setText(content)
	return nil
}

type embeddingRequest struct {
	ModelId   string   `json:"model_id"`
	ProjectId string   `json:"project_id,omitempty"`
	SpaceId   string   `json:"space_id,omitempty"`
	Inputs    []string `json:"inputs"`
}

type embeddingResponse struct {
	Results []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"results"`
	InputTokenCount int `json:"input_token_count"`
}

// embedding embeds a json array of texts or the whole body. The body becomes
// the json array of vectors.
func embedding(ctx context.Context, r *request) error {
	var inputs []string
	body := strings.TrimSpace(r.exchange.In.Body)
	if !strings.HasPrefix(body, "[") || json.Unmarshal([]byte(body), &inputs) != nil {
		inputs = []string{r.exchange.In.Body}
	}
	req := embeddingRequest{ModelId: r.modelId, ProjectId: r.config.ProjectId, SpaceId: r.config.SpaceId, Inputs: inputs}
	var resp embeddingResponse
	if err := r.client.PostJson(ctx, "/ml/v1/text/embeddings", req, &resp); err != nil {
		return err
	}
	vectors := make([][]float64, 0, len(resp.Results))
	for _, result := range resp.Results {
		vectors = append(vectors, result.Embedding)
	}
	r.exchange.In.Headers.PutValue(HeaderInputTokenCount, strconv.Itoa(resp.InputTokenCount))
	return r.setJson(vectors)
}

type tokenizeRequest struct {
	ModelId    string         `json:"model_id"`
	Input      string         `json:"input"`
	ProjectId  string         `json:"project_id,omitempty"`
	SpaceId    string         `json:"space_id,omitempty"`
	Parameters map[string]any `json:"parameters"`
}

type tokenizeResponse struct {
	Result struct {
		TokenCount int      `json:"token_count"`
		Tokens     []string `json:"tokens,omitempty"`
	} `json:"result"`
}

func tokenize(ctx context.Context, r *request) error {
	req := tokenizeRequest{
		ModelId:    r.modelId,
		Input:      r.exchange.In.Body,
		ProjectId:  r.config.ProjectId,
		SpaceId:    r.config.SpaceId,
		Parameters: map[string]any{"return_tokens": true},
	}
	var resp tokenizeResponse
	if err := r.client.PostJson(ctx, "/ml/v1/text/tokenization", req, &resp); err != nil {
		return err
	}
	r.exchange.In.Headers.PutValue(HeaderTokenCount, strconv.Itoa(resp.Result.TokenCount))
	return r.setJson(resp.Result)
}
