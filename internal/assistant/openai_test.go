package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openaisvc "github.com/deepgram/coursechat/internal/infrastructure/openai"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletions serves a canned server-sent event stream.
func fakeCompletions(t *testing.T, deltas []string, seen *openai.ChatCompletionRequest) *openaisvc.Service {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range deltas {
			chunk := openai.ChatCompletionStreamResponse{
				ID:      "chatcmpl-1",
				Object:  "chat.completion.chunk",
				Model:   "test-model",
				Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: delta}}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(ts.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	return openaisvc.NewServiceWithConfig(cfg, "test-model")
}

func TestOpenAIResponderStreams(t *testing.T) {
	var seen openai.ChatCompletionRequest
	service := fakeCompletions(t, []string{"Take the ", "OSHA 40-Hour Hazwoper", " course, required by 29 CFR 1910.120."}, &seen)
	r := NewOpenAIResponder(service, DefaultCatalog)

	var deltas []string
	reply, err := r.Respond(context.Background(), Request{
		SessionID: "S1",
		Message:   "How to get OSHA licence?",
		History: []Turn{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
	}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, deltas, 3)
	assert.Equal(t, strings.Join(deltas, ""), reply.Text)
	assert.True(t, reply.HasNewRecommendations)
	require.Len(t, reply.Recommendations, 1)
	assert.Equal(t, "default-1", reply.Recommendations[0].CourseID)
	assert.Equal(t, []string{"29 CFR 1910.120"}, reply.CitedRegulations)

	assert.Equal(t, "test-model", seen.Model)
	assert.True(t, seen.Stream)
	require.Len(t, seen.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Contains(t, seen.Messages[0].Content, "Confined Space Entry")
	assert.Equal(t, "hi", seen.Messages[1].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, seen.Messages[3].Role)
	assert.Equal(t, "How to get OSHA licence?", seen.Messages[3].Content)
}

func TestOpenAIResponderEmptyReply(t *testing.T) {
	r := NewOpenAIResponder(fakeCompletions(t, nil, nil), DefaultCatalog)

	_, err := r.Respond(context.Background(), Request{Message: "hi"}, func(string) error { return nil })

	var public *PublicError
	require.ErrorAs(t, err, &public)
	assert.Equal(t, "the assistant returned an empty reply", public.Message)
}

func TestOpenAIResponderUpstreamFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer ts.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	r := NewOpenAIResponder(openaisvc.NewServiceWithConfig(cfg, "test-model"), DefaultCatalog)

	_, err := r.Respond(context.Background(), Request{Message: "hi"}, func(string) error { return nil })
	require.Error(t, err)
	assert.Equal(t, "failed to generate a reply", replyErrorMessage(err))
}
