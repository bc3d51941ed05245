// Package judge scores submitted solutions against a problem statement using
// an OpenAI-compatible chat completions API.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"codeduel-server/duelerrors"
)

// Result is the judge's verdict on a submission.
type Result struct {
	Score    int    `json:"score"`    // 0-5
	Feedback string `json:"feedback"`
}

// Judge scores a solution against a problem statement. Implementations must
// honour ctx cancellation.
type Judge interface {
	Score(ctx context.Context, solution, problem string) (Result, error)
}

const systemPrompt = `You are an encouraging coding challenge reviewer who evaluates solutions based on both algorithmic efficiency and clarity of explanation. You accept solutions in any format (code, natural language, or pseudocode), but they must meet LeetCode-style performance requirements.

Main Criteria:
1. Time/Space Complexity: Must be optimal or near-optimal (within one complexity class of optimal)
2. Clarity: Solution must be clear enough for implementation

Rate solutions from 0-5:
0: Incorrect solution or unacceptable time/space complexity
1: Correct but highly inefficient (>1 complexity class from optimal)
2: Correct with suboptimal complexity (1 complexity class from optimal)
3: Optimal complexity but could be clearer
4: Optimal complexity and clear explanation
5: Optimal complexity with exceptional clarity and handling of edge cases

Respond with a JSON object: {"score": <0-5>, "feedback": "<one short paragraph>"}.`

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient creates a judge client. timeout bounds every Score call in
// addition to the caller's context.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Score submits the solution and problem to the model and parses the verdict.
// Any transport, status or parse failure is reported as ErrJudgeUnavailable so
// callers treat the submission as not accepted rather than fatal.
func (c *Client) Score(ctx context.Context, solution, problem string) (Result, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Question:\n%s\n\nUser's solution:\n%s", problem, solution)},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", duelerrors.ErrJudgeUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", duelerrors.ErrJudgeUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", duelerrors.ErrJudgeUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		slog.Warn("judge returned non-200", "tag", "judge", "status", resp.StatusCode)
		return Result{}, fmt.Errorf("%w: status %d", duelerrors.ErrJudgeUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: %v", duelerrors.ErrJudgeUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: empty completion", duelerrors.ErrJudgeUnavailable)
	}

	var result Result
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &result); err != nil {
		return Result{}, fmt.Errorf("%w: unparseable verdict: %v", duelerrors.ErrJudgeUnavailable, err)
	}
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 5 {
		result.Score = 5
	}
	return result, nil
}
