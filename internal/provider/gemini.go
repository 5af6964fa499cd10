package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"groupshot/internal/assets"
	"groupshot/internal/infra"
)

// ErrMissingGeminiKey indicates the client was configured without credentials.
var ErrMissingGeminiKey = errors.New("gemini: api key is required")

// GeminiOptions configures the Gemini client.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     infra.Logger
}

// Gemini composes group photos through the generateContent endpoint. It is a
// synchronous provider: the composed image comes back inline as base64 parts
// on the submission call.
type Gemini struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     infra.Logger
}

// NewGemini constructs the client with sane defaults.
func NewGemini(opts GeminiOptions) (*Gemini, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingGeminiKey
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Gemini{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Model returns the configured model identifier.
func (g *Gemini) Model() string {
	return g.model
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiGenerateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate submits the prompt plus reference images and returns the first
// inline image part of the first candidate.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Image, error) {
	parts := make([]geminiPart, 0, len(req.Members)+2)
	parts = append(parts, geminiPart{Text: req.Prompt})
	if req.Background != nil {
		parts = append(parts, inlinePart(*req.Background))
	}
	for _, member := range req.Members {
		parts = append(parts, inlinePart(member))
	}
	payload := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewError(KindTransient, fmt.Errorf("gemini: http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindTransient, fmt.Errorf("gemini: read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(raw))
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return nil, NewError(kindForStatus(resp.StatusCode), fmt.Errorf("gemini: status %d: %s", resp.StatusCode, detail))
	}

	var decoded geminiGenerateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, NewError(KindTransient, fmt.Errorf("gemini: decode response: %w", err))
	}
	if decoded.Error != nil {
		return nil, NewError(KindInvalidRequest, fmt.Errorf("gemini: %s (%s)", decoded.Error.Message, decoded.Error.Status))
	}
	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, NewError(KindTransient, fmt.Errorf("gemini: decode image data: %w", err))
			}
			contentType := part.InlineData.MimeType
			if contentType == "" {
				contentType = "image/jpeg"
			}
			return &Image{Data: data, ContentType: contentType, Model: g.model}, nil
		}
	}
	return nil, NewError(KindInvalidRequest, errors.New("gemini: response contained no image data"))
}

func inlinePart(asset assets.Asset) geminiPart {
	return geminiPart{InlineData: &geminiInlineData{
		MimeType: asset.ContentType,
		Data:     base64.StdEncoding.EncodeToString(asset.Data),
	}}
}

var _ SyncGenerator = (*Gemini)(nil)
