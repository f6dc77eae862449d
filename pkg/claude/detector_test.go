package claude

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/resilience"
)

type fakeClient struct {
	responses []string
	errs      []error
	calls     int
	lastReq   MessageRequest
}

func (f *fakeClient) CreateMessage(_ context.Context, req MessageRequest) (*MessageResponse, error) {
	i := f.calls
	f.calls++
	f.lastReq = req
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &MessageResponse{
		Content: []ContentBlock{{Type: "text", Text: f.responses[i]}},
	}, nil
}

func newFakeDetector(fake *fakeClient) *Detector {
	d := NewDetector(fake, "claude-sonnet-4-5")
	d.retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: 1, MaxBackoff: 1}
	return d
}

func TestDetectParsesEntities(t *testing.T) {
	fake := &fakeClient{responses: []string{`{
		"entities": [
			{"kind": "fee", "confidence": 0.92, "quoted": "revised fee of $50,000",
			 "data": {"amounts": ["$50,000"]}},
			{"kind": "task", "confidence": 0.7,
			 "data": {"item_title": "Send revised schedule", "deadline_text": "by Friday"}}
		]
	}`}}
	d := newFakeDetector(fake)

	det, err := d.Detect(context.Background(), model.Detection{
		EmailID:           "em-1",
		Sender:            "dana@harborlane.com",
		Subject:           "Re: 25 AB-101",
		Body:              "The revised fee of $50,000 works. Send the revised schedule by Friday.",
		LinkedProjectCode: "25 AB-101",
	})
	require.NoError(t, err)
	require.Len(t, det.Entities, 2)

	assert.Equal(t, model.EntityFee, det.Entities[0].Kind)
	assert.InDelta(t, 0.92, det.Entities[0].Confidence, 0.001)
	assert.Equal(t, []string{"$50,000"}, det.Entities[0].Data.Amounts)

	assert.Equal(t, model.EntityTask, det.Entities[1].Kind)
	assert.Equal(t, "Send revised schedule", det.Entities[1].Data.ItemTitle)

	// Source fields pass through.
	assert.Equal(t, "em-1", det.EmailID)
	assert.Equal(t, "25 AB-101", det.LinkedProjectCode)
}

func TestDetectToleratesProseAroundJSON(t *testing.T) {
	fake := &fakeClient{responses: []string{
		"Here is what I found:\n{\"entities\": [{\"kind\": \"status\", \"confidence\": 0.9, \"data\": {\"new_status\": \"sent\"}}]}\nDone.",
	}}
	det, err := newFakeDetector(fake).Detect(context.Background(), model.Detection{Body: "proposal went out"})
	require.NoError(t, err)
	require.Len(t, det.Entities, 1)
	assert.Equal(t, "sent", det.Entities[0].Data.NewStatus)
}

func TestDetectDropsUnknownKinds(t *testing.T) {
	fake := &fakeClient{responses: []string{
		`{"entities": [{"kind": "weather", "confidence": 0.9}, {"kind": "fee", "confidence": 0.8, "data": {"amounts": ["$1k"]}}]}`,
	}}
	det, err := newFakeDetector(fake).Detect(context.Background(), model.Detection{Body: "..."})
	require.NoError(t, err)
	require.Len(t, det.Entities, 1)
	assert.Equal(t, model.EntityFee, det.Entities[0].Kind)
}

func TestDetectRetriesTransientErrors(t *testing.T) {
	fake := &fakeClient{
		errs:      []error{resilience.NewTransientError(eris.New("overloaded"), 529), nil},
		responses: []string{"", `{"entities": []}`},
	}
	det, err := newFakeDetector(fake).Detect(context.Background(), model.Detection{Body: "..."})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
	assert.Empty(t, det.Entities)
}

func TestDetectFailsOnGarbage(t *testing.T) {
	fake := &fakeClient{responses: []string{"I could not process that."}}
	_, err := newFakeDetector(fake).Detect(context.Background(), model.Detection{Body: "..."})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON object")
}

func TestDetectRequestShape(t *testing.T) {
	fake := &fakeClient{responses: []string{`{"entities": []}`}}
	_, err := newFakeDetector(fake).Detect(context.Background(), model.Detection{
		TranscriptID: "tr-1",
		Body:         "discussion notes",
	})
	require.NoError(t, err)

	require.Len(t, fake.lastReq.System, 1)
	assert.NotNil(t, fake.lastReq.System[0].CacheControl, "system prompt is cached")
	require.Len(t, fake.lastReq.Messages, 1)
	assert.Contains(t, fake.lastReq.Messages[0].Content, "meeting transcript")
	assert.Contains(t, fake.lastReq.Messages[0].Content, "discussion notes")
}
