package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PageTextFunc supplies the raw text of one source document page.
type PageTextFunc func(sourcePath string, page int) (string, error)

// OpenAIExtractor implements StructureExtractor against an OpenAI
// chat-completions endpoint (or any API-compatible server). The model
// receives raw page text and returns the classified structure as JSON.
type OpenAIExtractor struct {
	endpoint string
	apiKey   string
	model    string
	pageText PageTextFunc
	client   *http.Client
}

// NewOpenAIExtractor creates an HTTP structure extractor
func NewOpenAIExtractor(endpoint, apiKey, model string, pageText PageTextFunc) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("extract api key is required")
	}
	if pageText == nil {
		return nil, fmt.Errorf("page text source is required")
	}
	return &OpenAIExtractor{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		pageText: pageText,
		client:   &http.Client{},
	}, nil
}

// Name identifies this provider for throttling and breaker state
func (e *OpenAIExtractor) Name() string {
	return "openai-extract"
}

const extractInstruction = `Classify the page text into document structure. ` +
	`Respond with a JSON object holding four string arrays: ` +
	`"headers", "paragraphs", "lists" and "tables". ` +
	`Preserve reading order and the original wording.`

// ExtractPage classifies one page of the source document
func (e *OpenAIExtractor) ExtractPage(ctx context.Context, sourcePath string, page int) (*PageStructure, error) {
	text, err := e.pageText(sourcePath, page)
	if err != nil {
		return nil, fmt.Errorf("reading page %d: %w", page, err)
	}
	if text == "" {
		return &PageStructure{Page: page}, nil
	}

	content, err := e.chatJSON(ctx, extractInstruction, text)
	if err != nil {
		return nil, err
	}

	structure := &PageStructure{}
	if err := json.Unmarshal(content, structure); err != nil {
		return nil, &TransientError{Provider: e.Name(), Message: "model returned malformed structure", Err: err}
	}
	structure.Page = page
	return structure, nil
}

const exclusionInstruction = `You are given numbered pages of a book. ` +
	`Identify pages that should be excluded from narration: tables of ` +
	`contents, indexes, copyright pages and other front or back matter. ` +
	`Respond with a JSON object {"excluded": [page numbers]}.`

// DetectExcludedPages asks the model which pages are non-narratable
// front or back matter. Page numbers are 1-based.
func (e *OpenAIExtractor) DetectExcludedPages(ctx context.Context, pageTexts []string) ([]int, error) {
	var sb strings.Builder
	for i, text := range pageTexts {
		fmt.Fprintf(&sb, "=== Page %d ===\n%s\n\n", i+1, text)
	}

	content, err := e.chatJSON(ctx, exclusionInstruction, sb.String())
	if err != nil {
		return nil, err
	}

	var verdict struct {
		Excluded []int `json:"excluded"`
	}
	if err := json.Unmarshal(content, &verdict); err != nil {
		return nil, &TransientError{Provider: e.Name(), Message: "model returned malformed verdict", Err: err}
	}
	return verdict.Excluded, nil
}

// chatJSON posts one chat-completions request in JSON mode and returns
// the raw message content of the first choice.
func (e *OpenAIExtractor) chatJSON(ctx context.Context, instruction, input string) ([]byte, error) {
	payload := map[string]interface{}{
		"model":           e.model,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": instruction},
			{"role": "user", "content": input},
		},
	}
	body, _ := json.Marshal(payload)

	// Adopt timeout from ctx or fall back to 60s
	reqCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, "POST", e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &TransientError{Provider: e.Name(), Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		if isOverloadStatus(resp.StatusCode) {
			return nil, &OverloadError{Provider: e.Name(), Message: msg}
		}
		return nil, &TransientError{Provider: e.Name(), Message: msg}
	}

	var chat struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, &TransientError{Provider: e.Name(), Message: "decoding response", Err: err}
	}
	if len(chat.Choices) == 0 {
		return nil, &TransientError{Provider: e.Name(), Message: "response carried no choices"}
	}
	return []byte(chat.Choices[0].Message.Content), nil
}
