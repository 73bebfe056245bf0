package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Result carries one translated chunk: the detected source language and the
// translated text per target language.
type Result struct {
	DetectedLanguage string
	Translations     map[string]string
}

// Translator converts one piece of text into a set of target languages.
type Translator interface {
	Translate(ctx context.Context, text string, targets []string) (Result, error)
}

// HTTPTranslator speaks the Azure Translator v3 wire format.
type HTTPTranslator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPTranslator builds a client for the configured translation endpoint.
func NewHTTPTranslator(endpoint, apiKey string) *HTTPTranslator {
	return &HTTPTranslator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type translateRequestItem struct {
	Text string `json:"Text"`
}

type translateResponseItem struct {
	DetectedLanguage struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	} `json:"detectedLanguage"`
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Translate sends one text to the service with all target languages on a
// single request.
func (t *HTTPTranslator) Translate(ctx context.Context, text string, targets []string) (Result, error) {
	if len(targets) == 0 {
		return Result{}, fmt.Errorf("translate: no target languages")
	}
	body, err := json.Marshal([]translateRequestItem{{Text: text}})
	if err != nil {
		return Result{}, fmt.Errorf("translate: encode request: %w", err)
	}

	params := url.Values{}
	params.Set("api-version", "3.0")
	for _, lang := range targets {
		params.Add("to", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/translate?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("translate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("translate: status %d: %s", resp.StatusCode, snippet)
	}

	var items []translateResponseItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return Result{}, fmt.Errorf("translate: decode response: %w", err)
	}
	if len(items) == 0 {
		return Result{}, fmt.Errorf("translate: empty response")
	}

	out := Result{
		DetectedLanguage: items[0].DetectedLanguage.Language,
		Translations:     make(map[string]string, len(targets)),
	}
	for _, tr := range items[0].Translations {
		out.Translations[tr.To] = tr.Text
	}
	for _, lang := range targets {
		if _, ok := out.Translations[lang]; !ok {
			return Result{}, fmt.Errorf("translate: missing result for language %s", lang)
		}
	}
	return out, nil
}

var _ Translator = (*HTTPTranslator)(nil)
