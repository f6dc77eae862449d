package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/resilience"
)

// detectionSystemPrompt is static so the block caches across calls.
const detectionSystemPrompt = `You extract actionable entities from correspondence at an architecture and design studio. The studio tracks proposals by project codes like "25 AB-101".

Given an email or meeting transcript, return ONLY a JSON object, no prose:

{"entities": [{"kind": "...", "confidence": 0.0, "quoted": "...", "data": {...}}]}

Kinds and their data fields:
- "contact": new person mentioned with details. data: name, email, phone, company, role. For updates to a known person, set contact_name and updates (field -> new value).
- "fee": a proposal fee or budget figure. data: amounts (array of raw strings exactly as written).
- "status": a proposal moving through the pipeline (sent, accepted, declined, on hold...). data: new_status.
- "task": something the studio must do. data: item_title, details, assignee, deadline_text.
- "commitment": something the studio promised a client. data: item_title, details, deadline_text.
- "meeting": a meeting being arranged. data: item_title, details, deadline_text.
- "deadline": an explicit due date. data: item_title, deadline_text.
- "link": the message clearly belongs to a specific project. data: none; rely on the provided context.

Set confidence to how certain the text itself is (explicit statements above 0.9, inferences below 0.7). Quote the minimal supporting text in "quoted". Return {"entities": []} when nothing is actionable.`

// Detector classifies source text into detected entities.
type Detector struct {
	client Client
	model  string
	retry  resilience.RetryConfig
}

// NewDetector wires a detector for the configured model.
func NewDetector(client Client, modelID string) *Detector {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("claude", "detect")
	return &Detector{client: client, model: modelID, retry: cfg}
}

// Detect fills in the entity list of a detection from its text. The
// detection's source fields pass through untouched.
func (d *Detector) Detect(ctx context.Context, det model.Detection) (model.Detection, error) {
	temp := 0.0
	req := MessageRequest{
		Model:       d.model,
		MaxTokens:   2048,
		Temperature: &temp,
		System: []SystemBlock{{
			Text:         detectionSystemPrompt,
			CacheControl: &CacheControl{TTL: "5m"},
		}},
		Messages: []Message{{Role: "user", Content: detectionInput(det)}},
	}

	resp, err := resilience.DoVal(ctx, d.retry, func(ctx context.Context) (*MessageResponse, error) {
		return d.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return det, err
	}
	resp.Usage.Log(d.model, "detect")

	entities, err := parseEntities(responseText(resp))
	if err != nil {
		return det, err
	}
	det.Entities = entities
	return det, nil
}

func detectionInput(det model.Detection) string {
	var b strings.Builder
	if det.TranscriptID != "" {
		b.WriteString("Source: meeting transcript\n")
	} else {
		b.WriteString("Source: email\n")
	}
	if det.Sender != "" {
		fmt.Fprintf(&b, "From: %s\n", det.Sender)
	}
	if det.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", det.Subject)
	}
	if det.LinkedProjectCode != "" {
		fmt.Fprintf(&b, "Known project: %s\n", det.LinkedProjectCode)
	}
	b.WriteString("\n")
	b.WriteString(det.Body)
	return b.String()
}

func responseText(resp *MessageResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseEntities decodes the model's JSON, tolerating prose around the
// object. Unknown kinds are dropped rather than failing the batch.
func parseEntities(text string) ([]model.DetectedEntity, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("claude: no JSON object in response %q", truncate(text, 120))
	}

	var payload struct {
		Entities []model.DetectedEntity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, eris.Wrap(err, "claude: decode entities")
	}

	known := map[model.EntityKind]bool{
		model.EntityContact: true, model.EntityFee: true, model.EntityStatus: true,
		model.EntityTask: true, model.EntityCommitment: true, model.EntityMeeting: true,
		model.EntityDeadline: true, model.EntityLink: true,
	}
	out := payload.Entities[:0]
	for _, e := range payload.Entities {
		if known[e.Kind] {
			out = append(out, e)
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
