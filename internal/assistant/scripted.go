package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const fallbackReply = "I can help you choose OSHA and HAZWOPER training. " +
	"Tell me about your role, the hazards on your site, or whether you need a refresher."

// ScriptedResponder answers from the course catalog without any model. It is
// deterministic, which makes it the responder of choice for tests and demos.
type ScriptedResponder struct {
	Catalog Catalog
	// ChunkDelay spaces out streamed fragments to mimic typing.
	ChunkDelay time.Duration
}

func NewScriptedResponder(catalog Catalog) *ScriptedResponder {
	return &ScriptedResponder{Catalog: catalog}
}

func (r *ScriptedResponder) Respond(ctx context.Context, req Request, emit func(string) error) (Reply, error) {
	courses, regulations := r.Catalog.Match(req.Message)

	text := fallbackReply
	if len(courses) > 0 {
		names := make([]string, len(courses))
		for i, course := range courses {
			names[i] = fmt.Sprintf("%s (%s, %s)", course.CourseName, course.Duration, course.Price)
		}
		text = "Based on what you described, I recommend " + strings.Join(names, " or ") + "."
		if len(regulations) > 0 {
			text += " These cover " + strings.Join(regulations, " and ") + "."
		}
	}

	for _, chunk := range chunks(text) {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}
		if err := emit(chunk); err != nil {
			return Reply{}, err
		}
		if r.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return Reply{}, ctx.Err()
			case <-time.After(r.ChunkDelay):
			}
		}
	}

	return Reply{
		Text:                  text,
		HasNewRecommendations: len(courses) > 0,
		Recommendations:       courses,
		CitedRegulations:      regulations,
	}, nil
}

// chunks splits text into word sized fragments that concatenate back to text.
func chunks(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
