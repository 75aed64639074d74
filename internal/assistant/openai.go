package assistant

import (
	"context"
	"io"
	"strings"

	openaisvc "github.com/deepgram/coursechat/internal/infrastructure/openai"
	"github.com/deepgram/coursechat/internal/protocol"
	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are a training advisor for HAZWOPER and OSHA safety courses.
Answer briefly and concretely. Recommend courses only from this catalog, using their exact names:
%CATALOG%
When a requirement comes from a regulation, cite it in the form "29 CFR 1910.120".`

// OpenAIResponder streams a chat completion and derives recommendations from
// the course names the model mentions.
type OpenAIResponder struct {
	service *openaisvc.Service
	catalog Catalog
	log     zerolog.Logger
}

func NewOpenAIResponder(service *openaisvc.Service, catalog Catalog) *OpenAIResponder {
	return &OpenAIResponder{
		service: service,
		catalog: catalog,
		log:     logger.With(logger.ASSISTANT).With().Str("responder", "openai").Logger(),
	}
}

func (r *OpenAIResponder) Respond(ctx context.Context, req Request, emit func(string) error) (Reply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: strings.Replace(systemPrompt, "%CATALOG%", r.catalog.Prompt(), 1),
	})
	for _, turn := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	stream, err := r.service.GetClient().CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    r.service.Model(),
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		r.log.Error().Err(err).Str("session_id", req.SessionID).Msg("Failed to open completion stream")
		return Reply{}, errors.Wrap(err, "open completion stream")
	}
	defer stream.Close()

	var text strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.log.Error().Err(err).Str("session_id", req.SessionID).Msg("Completion stream failed")
			return Reply{}, errors.Wrap(err, "receive completion")
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if err := emit(delta); err != nil {
			return Reply{}, err
		}
	}

	reply := strings.TrimSpace(text.String())
	if reply == "" {
		return Reply{}, &PublicError{Message: "the assistant returned an empty reply"}
	}

	courses := r.mentioned(reply)
	return Reply{
		Text:                  reply,
		HasNewRecommendations: len(courses) > 0,
		Recommendations:       courses,
		CitedRegulations:      Citations(reply),
	}, nil
}

func (r *OpenAIResponder) mentioned(reply string) []protocol.CourseRecommendation {
	lower := strings.ToLower(reply)
	var out []protocol.CourseRecommendation
	for _, course := range r.catalog {
		if strings.Contains(lower, strings.ToLower(course.CourseName)) {
			out = append(out, course.CourseRecommendation)
		}
	}
	return out
}
