package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

const extractionPreamble = `You extract structured entities from news and policy documents.
Respond with a JSON array only, no prose. Each element:
{"kind": "<organization|person|location|policy|technology>",
 "name": "<canonical name>",
 "attributes": {<optional string keys>},
 "confidence": <0.0-1.0>}
Return [] if the document contains no extractable entities.`

const maxBodyChars = 12000

// CohereClient implements Client against the Cohere chat API.
type CohereClient struct {
	client *cohereclient.Client
	model  string
}

// NewCohereClient builds the inference client. The HTTP client forces
// HTTP/1.1 because the Cohere endpoint intermittently fails HTTP/2 upgrades.
func NewCohereClient(apiKey, model string) (*CohereClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cohere API key is required")
	}
	httpClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &CohereClient{client: client, model: model}, nil
}

func (c *CohereClient) ModelVersion() string { return c.model }

func (c *CohereClient) Extract(ctx context.Context, doc Document) ([]Entity, error) {
	body := doc.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	message := fmt.Sprintf("Source: %s\nPublished: %s\nTitle: %s\n\n%s",
		doc.SourceName, doc.PublishedAt.Format(time.RFC3339), doc.Title, body)

	preamble := extractionPreamble
	resp, err := c.client.Chat(ctx, &cohere.ChatRequest{
		Model:    &c.model,
		Preamble: &preamble,
		Message:  message,
	})
	if err != nil {
		return nil, fmt.Errorf("cohere chat: %w", err)
	}

	entities, err := parseEntities(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return entities, nil
}

// parseEntities decodes the model's JSON array, tolerating markdown fences
// and leading prose the model occasionally adds despite the preamble.
func parseEntities(text string) ([]Entity, error) {
	text = strings.TrimSpace(text)
	if start := strings.IndexByte(text, '['); start >= 0 {
		if end := strings.LastIndexByte(text, ']'); end > start {
			text = text[start : end+1]
		}
	}

	var entities []Entity
	if err := json.Unmarshal([]byte(text), &entities); err != nil {
		return nil, err
	}

	out := entities[:0]
	for _, e := range entities {
		if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Kind) == "" {
			continue
		}
		if e.Confidence < 0 {
			e.Confidence = 0
		}
		if e.Confidence > 1 {
			e.Confidence = 1
		}
		out = append(out, e)
	}
	return out, nil
}
