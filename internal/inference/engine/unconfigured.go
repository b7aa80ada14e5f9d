package engine

import "context"

// Unconfigured stands in for a model whose adapter could not be built (usually
// a missing API key). It keeps the model listed while failing every call with
// a non-retryable authentication error.
type Unconfigured struct {
	Provider string
	Reason   error
}

func (u Unconfigured) GenerateText(context.Context, string, []Message, GenerateOptions) (string, error) {
	return "", u.err()
}

func (u Unconfigured) OpenStream(context.Context, string, []Message, GenerateOptions) (Stream, error) {
	return nil, u.err()
}

func (u Unconfigured) err() error {
	return &Error{Kind: KindAuthentication, Provider: u.Provider, Err: u.Reason}
}
