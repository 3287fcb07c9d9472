package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaConfig configures the Ollama adapter.
type OllamaConfig struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client
}

// OllamaClient sends requests to a local Ollama server's generate endpoint.
type OllamaClient struct {
	log        *slog.Logger
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates an Ollama adapter. Request deadlines come from the caller's context.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &OllamaClient{
		log:        cfg.Logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// Generate posts req to /api/generate with streaming off.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (Response, error) {
	model := req.Preferences.Model
	options := map[string]any{}
	if req.Preferences.MaxTokens > 0 {
		options["num_predict"] = req.Preferences.MaxTokens
	}
	if req.Preferences.Temperature != nil {
		options["temperature"] = *req.Preferences.Temperature
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return Response{}, &Error{Kind: ConfigurationError, Model: model, Err: fmt.Errorf("json marshal: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, &Error{Kind: ConfigurationError, Model: model, Err: fmt.Errorf("new request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, &Error{Kind: kindForTransport(err), Model: model, Err: fmt.Errorf("ollama request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		msg := strings.TrimSpace(string(b))
		return Response{}, &Error{
			Kind:  kindForStatus(resp.StatusCode, msg),
			Model: model,
			Err:   fmt.Errorf("ollama generate http %d: %s", resp.StatusCode, msg),
		}
	}

	out, err := readOllamaResponse(resp.Body)
	duration := time.Since(start)
	if err != nil {
		kind := kindForTransport(err)
		var oe ollamaError
		if errors.As(err, &oe) {
			kind = kindForStatus(http.StatusBadRequest, string(oe))
		}
		return Response{}, &Error{Kind: kind, Model: model, Err: err}
	}
	c.log.Debug("ollama: request completed", "model", model, "duration", duration, "task", req.TaskType)

	respModel := out.Model
	if respModel == "" {
		respModel = model
	}
	return Response{
		Content: out.Response,
		Model:   respModel,
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
		Metadata: Metadata{Provider: providerOllama, LatencyMs: duration.Milliseconds()},
	}, nil
}

type ollamaError string

func (e ollamaError) Error() string { return "ollama error: " + string(e) }

// readOllamaResponse accumulates newline-delimited chunks. Ollama may send several even with
// streaming off.
func readOllamaResponse(r io.Reader) (ollamaGenerateResponse, error) {
	var last ollamaGenerateResponse
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return last, fmt.Errorf("stream decode: %w (line=%q)", err, string(line))
		}
		if chunk.Error != "" {
			return last, ollamaError(chunk.Error)
		}
		last.Response += chunk.Response
		if chunk.Model != "" {
			last.Model = chunk.Model
		}
		if chunk.PromptEvalCount > 0 {
			last.PromptEvalCount = chunk.PromptEvalCount
		}
		if chunk.EvalCount > 0 {
			last.EvalCount = chunk.EvalCount
		}
		last.Done = chunk.Done
		if chunk.Done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return last, fmt.Errorf("scan: %w", err)
	}
	return last, nil
}
