package engine

import "context"

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string
	Content string
}

type GenerateOptions struct {
	Temperature float64
	// MaxTokens caps the output; zero leaves it to the provider default.
	MaxTokens int
	// JSONMode asks providers that support it for a JSON object response.
	JSONMode bool
}

// Stream yields text fragments in arrival order. Recv returns io.EOF once the
// model has finished. Close releases the underlying connection and is safe to
// call more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Engine is a single provider adapter. Errors returned by either method should
// be *Error values so callers can decide on retries without knowing the provider.
type Engine interface {
	GenerateText(ctx context.Context, model string, messages []Message, opts GenerateOptions) (string, error)
	// OpenStream returns once the provider has accepted the request. Failures
	// before that point come back from OpenStream, later ones from Recv.
	OpenStream(ctx context.Context, model string, messages []Message, opts GenerateOptions) (Stream, error)
}

// SplitSystem separates system messages (joined with blank lines) from the rest.
// Anthropic and Gemini both take the system prompt out of band.
func SplitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
