package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements Provider against an OpenAI-compatible speech
// API: multipart upload, verbose JSON response with segment timestamps.
type OpenAIProvider struct {
	apiKey       string
	baseURL      string
	model        string
	diarizeModel string
	httpClient   *http.Client
}

// NewOpenAI creates a provider with the default HTTP client.
func NewOpenAI(apiKey string) *OpenAIProvider {
	return NewOpenAIWithClient(apiKey, &http.Client{})
}

// NewOpenAIWithClient creates a provider with a custom HTTP client.
func NewOpenAIWithClient(apiKey string, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        "whisper-1",
		diarizeModel: "whisper-1",
		httpClient:   client,
	}
}

// WithBaseURL overrides the API base URL (for compatible self-hosted
// deployments and test servers).
func (p *OpenAIProvider) WithBaseURL(baseURL string) *OpenAIProvider {
	if strings.TrimSpace(baseURL) != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	return p
}

// WithModels overrides the streaming and diarization model ids.
func (p *OpenAIProvider) WithModels(model, diarizeModel string) *OpenAIProvider {
	if strings.TrimSpace(model) != "" {
		p.model = model
	}
	if strings.TrimSpace(diarizeModel) != "" {
		p.diarizeModel = diarizeModel
	}
	return p
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Transcribe uploads a WAV container and decodes the verbose JSON result.
func (p *OpenAIProvider) Transcribe(ctx context.Context, wav []byte, opts Options) (*Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = p.model
		if opts.Diarize {
			model = p.diarizeModel
		}
	}
	if err := mw.WriteField("model", model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("write response_format field: %w", err)
	}
	if err := mw.WriteField("timestamp_granularities[]", "segment"); err != nil {
		return nil, fmt.Errorf("write timestamp field: %w", err)
	}
	if opts.Language != "" {
		if err := mw.WriteField("language", opts.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if opts.Diarize {
		if err := mw.WriteField("chunking_strategy", "auto"); err != nil {
			return nil, fmt.Errorf("write chunking field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &Error{Status: resp.StatusCode, Message: string(body)}
	}

	var decoded verboseTranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return decoded.toResult(), nil
}

type verboseTranscriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker *int    `json:"speaker,omitempty"`
	} `json:"segments,omitempty"`
}

func (r verboseTranscriptionResponse) toResult() *Result {
	out := &Result{
		Text:     strings.TrimSpace(r.Text),
		Language: r.Language,
		Duration: r.Duration,
	}
	if len(r.Segments) == 0 {
		return out
	}
	out.Segments = make([]Segment, 0, len(r.Segments))
	for _, seg := range r.Segments {
		s := Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
		if seg.Speaker != nil {
			id := *seg.Speaker
			s.SpeakerID = &id
			s.Speaker = fmt.Sprintf("Speaker %d", id+1)
		}
		out.Segments = append(out.Segments, s)
	}
	return out
}
