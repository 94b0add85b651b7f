package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"noteflow/internal/domain/model"
)

const requestTimeout = 10 * time.Minute

// OpenAI talks to the audio transcription and chat completion endpoints.
type OpenAI struct {
	apiKey          string
	baseURL         string
	transcribeModel string
	summaryModel    string
	httpClient      *http.Client
}

func NewOpenAI(apiKey, baseURL, transcribeModel, summaryModel string) *OpenAI {
	return &OpenAI{
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		transcribeModel: transcribeModel,
		summaryModel:    summaryModel,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (s *OpenAI) Ready() error {
	if strings.TrimSpace(s.apiKey) == "" {
		return errors.New("OpenAI API key not configured")
	}
	return nil
}

func (s *OpenAI) Model() string {
	return s.summaryModel
}

// Transcribe uploads the file and asks for verbose_json so segment
// log-probabilities come back.
func (s *OpenAI) Transcribe(ctx context.Context, filePath string) (*model.Transcription, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.WriteField("model", s.transcribeModel); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("write response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeOpenAIError(resp)
	}

	var payload model.Transcription
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	return &payload, nil
}

// Generate sends the prompt as a single user message.
func (s *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if err := s.Ready(); err != nil {
		return "", err
	}

	payload := map[string]any{
		"model": s.summaryModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", buf)
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeOpenAIError(resp)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func decodeOpenAIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("openai api error: status %d type %s message %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Errorf("openai api error: status %d body %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
