package genai

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

	"github.com/rs/zerolog"

	"kairopi/internal/infra"
)

// ErrNoImage is returned when a generation succeeds without inline image data.
var ErrNoImage = errors.New("genai: no image data found in response")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin REST facade over the Gemini API: text and image
// generateContent calls, Imagen predict, and Veo long-running operations.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// TextRequest is a single-turn text generation.
type TextRequest struct {
	Prompt            string
	SystemInstruction string
	// ResponseSchema switches the response to JSON constrained by the schema.
	ResponseSchema map[string]any
}

// InlineImage is an image sent to or returned by the API.
type InlineImage struct {
	MimeType string
	Data     []byte
}

// DataURL renders the image the way browsers embed it.
func (i InlineImage) DataURL() string {
	return "data:" + i.MimeType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ImageRequest asks an image-capable Gemini model for one image, optionally
// conditioned on an input image.
type ImageRequest struct {
	Model  string
	Prompt string
	Input  *InlineImage
}

// ImagesRequest is an Imagen predict call.
type ImagesRequest struct {
	Model          string
	Prompt         string
	AspectRatio    string
	NumberOfImages int
	OutputMimeType string
}

// VideoRequest starts a Veo render.
type VideoRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	Resolution  string
}

// Operation is a long-running operation as returned by predictLongRunning
// and the operations endpoint.
type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *OperationError `json:"error,omitempty"`
	Response *VideoResponse  `json:"response,omitempty"`
}

type OperationError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type VideoResponse struct {
	GenerateVideoResponse GeneratedVideos `json:"generateVideoResponse"`
}

type GeneratedVideos struct {
	GeneratedSamples        []VideoSample `json:"generatedSamples"`
	RAIMediaFilteredCount   int           `json:"raiMediaFilteredCount,omitempty"`
	RAIMediaFilteredReasons []string      `json:"raiMediaFilteredReasons,omitempty"`
}

type VideoSample struct {
	Video VideoFile `json:"video"`
}

type VideoFile struct {
	URI string `json:"uri"`
}

// VideoURI returns the first generated sample's download location.
func (o *Operation) VideoURI() string {
	if o == nil || o.Response == nil {
		return ""
	}
	samples := o.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 {
		return ""
	}
	return samples[0].Video.URI
}

// FilteredReasons lists safety filter reasons reported for a finished render.
func (o *Operation) FilteredReasons() []string {
	if o == nil || o.Response == nil {
		return nil
	}
	return o.Response.GenerateVideoResponse.RAIMediaFilteredReasons
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMimeType   string         `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]any `json:"responseSchema,omitempty"`
	ResponseModalities []string       `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters map[string]any    `json:"parameters,omitempty"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type imagenPredictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("genai: invalid base url: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini text model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateText returns the first candidate's concatenated text parts.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.SystemInstruction != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}
	if req.ResponseSchema != nil {
		payload.GenerationConfig = &geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   req.ResponseSchema,
		}
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, http.MethodPost, modelPath(c.model, "generateContent"), payload, &response); err != nil {
		return "", err
	}
	for _, candidate := range response.Candidates {
		var b strings.Builder
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
	return "", fmt.Errorf("genai: empty text response")
}

// GenerateImage returns the first inline image of the response.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*InlineImage, error) {
	parts := make([]geminiPart, 0, 2)
	if req.Input != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: req.Input.MimeType,
			Data:     base64.StdEncoding.EncodeToString(req.Input.Data),
		}})
	}
	parts = append(parts, geminiPart{Text: req.Prompt})
	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, http.MethodPost, modelPath(req.Model, "generateContent"), payload, &response); err != nil {
		return nil, err
	}
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			asset, err := c.decodeInlineAsset(ctx, part)
			if err != nil {
				return nil, err
			}
			if len(asset.Data) > 0 {
				return &InlineImage{MimeType: firstNonEmpty(asset.MimeType, "image/png"), Data: asset.Data}, nil
			}
		}
	}
	return nil, ErrNoImage
}

// GenerateImages calls Imagen's predict endpoint.
func (c *Client) GenerateImages(ctx context.Context, req ImagesRequest) ([]InlineImage, error) {
	params := map[string]any{"sampleCount": clampQuantity(req.NumberOfImages)}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	if req.OutputMimeType != "" {
		params["outputOptions"] = map[string]any{"mimeType": req.OutputMimeType}
	}
	payload := predictRequest{Instances: []predictInstance{{Prompt: req.Prompt}}, Parameters: params}

	var response imagenPredictResponse
	if err := c.invokeGemini(ctx, http.MethodPost, modelPath(req.Model, "predict"), payload, &response); err != nil {
		return nil, err
	}
	images := make([]InlineImage, 0, len(response.Predictions))
	for _, p := range response.Predictions {
		if p.BytesBase64Encoded == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		images = append(images, InlineImage{MimeType: firstNonEmpty(p.MimeType, req.OutputMimeType, "image/png"), Data: data})
	}
	if len(images) == 0 {
		return nil, ErrNoImage
	}
	return images, nil
}

// StartVideo submits a Veo render and returns the pending operation.
func (c *Client) StartVideo(ctx context.Context, req VideoRequest) (*Operation, error) {
	params := map[string]any{"sampleCount": 1}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	if req.Resolution != "" {
		params["resolution"] = req.Resolution
	}
	payload := predictRequest{Instances: []predictInstance{{Prompt: req.Prompt}}, Parameters: params}

	var op Operation
	if err := c.invokeGemini(ctx, http.MethodPost, modelPath(req.Model, "predictLongRunning"), payload, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, fmt.Errorf("genai: operation name missing from response")
	}
	c.logger.Debug().Str("operation", op.Name).Str("model", req.Model).Msg("genai: video operation started")
	return &op, nil
}

// GetOperation fetches the current state of a long-running operation.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	var op Operation
	if err := c.invokeGemini(ctx, http.MethodGet, "/"+strings.TrimLeft(name, "/"), nil, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		op.Name = name
	}
	return &op, nil
}

// Download fetches a file URI produced by the API, authenticating with the key.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	return c.downloadFile(ctx, uri)
}

type inlineAsset struct {
	Data     []byte
	MimeType string
}

func (c *Client) invokeGemini(ctx context.Context, method, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
}

func (c *Client) decodeInlineAsset(ctx context.Context, part geminiPart) (inlineAsset, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return inlineAsset{}, fmt.Errorf("decode inline data: %w", err)
		}
		return inlineAsset{Data: data, MimeType: part.InlineData.MimeType}, nil
	}

	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := c.downloadFile(ctx, part.FileData.FileURI)
		if err != nil {
			return inlineAsset{}, err
		}
		return inlineAsset{Data: data, MimeType: firstNonEmpty(part.FileData.MimeType, mime)}, nil
	}

	return inlineAsset{}, nil
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, "", fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func modelPath(model, method string) string {
	return fmt.Sprintf("/models/%s:%s", url.PathEscape(model), method)
}

func clampQuantity(quantity int) int {
	if quantity <= 0 {
		return 1
	}
	if quantity > 4 {
		return 4
	}
	return quantity
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
