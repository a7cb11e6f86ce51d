package telnyx

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://api.telnyx.com/v2"

// Client is the provider boundary for the Telnyx Call Control API.
//
// Rules:
// - No provider HTTP calls outside this package.
// - One synchronous request per method; no retries, no circuit breaking.
//   Failures propagate to the command handler, which decides what to show
//   the dashboard user.
// - Non-2xx responses surface the provider's error body verbatim as *APIError.
type Client interface {
	Dial(ctx context.Context, req DialRequest) (DialResult, error)
	Answer(ctx context.Context, callControlID string) error
	Hangup(ctx context.Context, callControlID string) error
	Bridge(ctx context.Context, callControlID, otherLegID string) error
	StartRecording(ctx context.Context, callControlID string) error
	StartAI(ctx context.Context, callControlID string, cfg AIConfig) error
	StartStreaming(ctx context.Context, callControlID, streamURL string) error
	JoinConference(ctx context.Context, conferenceID, callControlID string, opts JoinOptions) error
	SwitchSupervisorRole(ctx context.Context, callControlID, role string) error
}

type DialRequest struct {
	To           string `json:"to"`
	From         string `json:"from"`
	ConnectionID string `json:"connection_id"`
}

type DialResult struct {
	CallControlID string `json:"call_control_id"`
	CallSessionID string `json:"call_session_id"`
}

// AIConfig configures the built-in Telnyx AI assistant.
type AIConfig struct {
	Prompt   string `json:"prompt,omitempty"`
	Language string `json:"language,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

// JoinOptions controls how a leg joins a conference.
// SupervisorRole is one of "monitor", "whisper", "barge" (empty for a plain join).
type JoinOptions struct {
	SupervisorRole string   `json:"supervisor_role,omitempty"`
	WhisperTo      []string `json:"whisper_call_control_ids,omitempty"`
}

// APIError carries the provider's response body verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telnyx: status %d: %s", e.StatusCode, e.Body)
}

// RESTClient implements Client against the Telnyx REST API.
type RESTClient struct {
	http *resty.Client
}

// Config for the REST client. BaseURL is overridable for tests.
type Config struct {
	APIKey  string
	BaseURL string
}

func NewRESTClient(cfg Config) *RESTClient {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	c := resty.New().
		SetBaseURL(base).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &RESTClient{http: c}
}

func (c *RESTClient) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	var out struct {
		Data DialResult `json:"data"`
	}
	if err := c.post(ctx, "/calls", req, &out); err != nil {
		return DialResult{}, err
	}
	return out.Data, nil
}

func (c *RESTClient) Answer(ctx context.Context, callControlID string) error {
	return c.post(ctx, actionPath(callControlID, "answer"), nil, nil)
}

func (c *RESTClient) Hangup(ctx context.Context, callControlID string) error {
	return c.post(ctx, actionPath(callControlID, "hangup"), nil, nil)
}

func (c *RESTClient) Bridge(ctx context.Context, callControlID, otherLegID string) error {
	body := map[string]string{"call_control_id": otherLegID}
	return c.post(ctx, actionPath(callControlID, "bridge"), body, nil)
}

func (c *RESTClient) StartRecording(ctx context.Context, callControlID string) error {
	body := map[string]string{"channels": "dual", "format": "mp3"}
	return c.post(ctx, actionPath(callControlID, "record_start"), body, nil)
}

func (c *RESTClient) StartAI(ctx context.Context, callControlID string, cfg AIConfig) error {
	return c.post(ctx, actionPath(callControlID, "ai_assistant_start"), cfg, nil)
}

func (c *RESTClient) StartStreaming(ctx context.Context, callControlID, streamURL string) error {
	body := map[string]any{"stream_url": streamURL, "bidirectional": true}
	return c.post(ctx, actionPath(callControlID, "streaming_start"), body, nil)
}

func (c *RESTClient) JoinConference(ctx context.Context, conferenceID, callControlID string, opts JoinOptions) error {
	body := struct {
		CallControlID string `json:"call_control_id"`
		JoinOptions
	}{CallControlID: callControlID, JoinOptions: opts}
	return c.post(ctx, "/conferences/"+conferenceID+"/actions/join", body, nil)
}

func (c *RESTClient) SwitchSupervisorRole(ctx context.Context, callControlID, role string) error {
	body := map[string]string{"role": role}
	return c.post(ctx, actionPath(callControlID, "switch_supervisor_role"), body, nil)
}

func (c *RESTClient) post(ctx context.Context, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}

func actionPath(callControlID, action string) string {
	return "/calls/" + callControlID + "/actions/" + action
}
