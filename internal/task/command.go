package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates command payload variants.
//
// The set is closed: every switch over Kind in this repo handles all
// values explicitly, and unknown kinds are rejected at schedule time
// rather than surfacing later inside the worker.
type Kind string

const (
	KindNoop         Kind = "noop"
	KindWebhook      Kind = "webhook"
	KindSendMessage  Kind = "send_message"
	KindScrapeSource Kind = "scrape_source"
	KindAnalyzeReply Kind = "analyze_reply"
)

// Kinds lists all known command kinds.
func Kinds() []Kind {
	return []Kind{KindNoop, KindWebhook, KindSendMessage, KindScrapeSource, KindAnalyzeReply}
}

func (k Kind) valid() bool {
	switch k {
	case KindNoop, KindWebhook, KindSendMessage, KindScrapeSource, KindAnalyzeReply:
		return true
	}
	return false
}

// Command is the opaque task payload: a kind tag plus kind-specific
// params. The scheduler passes it through unmodified; only executors
// interpret Params.
type Command struct {
	Kind   Kind            `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// WebhookParams posts a JSON body to a URL.
type WebhookParams struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"` // default POST
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// SendMessageParams asks the messaging component to contact a lead.
type SendMessageParams struct {
	LeadID    string            `json:"lead_id"`
	Channel   string            `json:"channel"` // "email", "linkedin", ...
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables,omitempty"`
}

// ScrapeSourceParams asks the scraping component to pull new leads.
type ScrapeSourceParams struct {
	SourceURL  string `json:"source_url"`
	CampaignID string `json:"campaign_id"`
	MaxLeads   int    `json:"max_leads,omitempty"`
}

// AnalyzeReplyParams asks the analysis component to classify a reply.
type AnalyzeReplyParams struct {
	LeadID    string `json:"lead_id"`
	MessageID string `json:"message_id"`
	ReplyText string `json:"reply_text"`
}

// Validate rejects commands with unknown kinds or undecodable params.
func (c Command) Validate() error {
	if !c.Kind.valid() {
		return fmt.Errorf("%w: unknown command kind %q", ErrValidation, string(c.Kind))
	}
	// Params must at least be well-formed JSON for the executor to decode.
	switch c.Kind {
	case KindNoop:
		return nil
	case KindWebhook:
		var p WebhookParams
		if err := c.decode(&p); err != nil {
			return err
		}
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("%w: webhook command requires url", ErrValidation)
		}
	case KindSendMessage:
		var p SendMessageParams
		if err := c.decode(&p); err != nil {
			return err
		}
		if p.LeadID == "" || p.Template == "" {
			return fmt.Errorf("%w: send_message command requires lead_id and template", ErrValidation)
		}
	case KindScrapeSource:
		var p ScrapeSourceParams
		if err := c.decode(&p); err != nil {
			return err
		}
		if p.SourceURL == "" {
			return fmt.Errorf("%w: scrape_source command requires source_url", ErrValidation)
		}
	case KindAnalyzeReply:
		var p AnalyzeReplyParams
		if err := c.decode(&p); err != nil {
			return err
		}
		if p.LeadID == "" || p.MessageID == "" {
			return fmt.Errorf("%w: analyze_reply command requires lead_id and message_id", ErrValidation)
		}
	}
	return nil
}

func (c Command) decode(into any) error {
	if len(c.Params) == 0 {
		return fmt.Errorf("%w: %s command requires params", ErrValidation, c.Kind)
	}
	if err := json.Unmarshal(c.Params, into); err != nil {
		return fmt.Errorf("%w: invalid %s params: %v", ErrValidation, c.Kind, err)
	}
	return nil
}

// Decode unmarshals the command params into a kind-specific struct.
// Executors use this after the registry routed on Kind.
func (c Command) Decode(into any) error { return c.decode(into) }

// Summary renders a short human-readable description for listings.
func (c Command) Summary() string {
	switch c.Kind {
	case KindNoop:
		return "noop"
	case KindWebhook:
		var p WebhookParams
		if c.decode(&p) == nil {
			return "webhook " + p.URL
		}
	case KindSendMessage:
		var p SendMessageParams
		if c.decode(&p) == nil {
			return fmt.Sprintf("send %s to lead %s", p.Template, p.LeadID)
		}
	case KindScrapeSource:
		var p ScrapeSourceParams
		if c.decode(&p) == nil {
			return "scrape " + p.SourceURL
		}
	case KindAnalyzeReply:
		var p AnalyzeReplyParams
		if c.decode(&p) == nil {
			return "analyze reply from lead " + p.LeadID
		}
	}
	return string(c.Kind)
}

// NewCommand builds a Command from a typed params value.
func NewCommand(kind Kind, params any) (Command, error) {
	c := Command{Kind: kind}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return Command{}, fmt.Errorf("%w: encode %s params: %v", ErrValidation, kind, err)
		}
		c.Params = raw
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}
