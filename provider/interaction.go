package provider

import "context"

// RequestResponse answers one input with one output, e.g. a transcription
// request with a transcript.
type RequestResponse[I, O any] interface {
	Provider
	Execute(ctx context.Context, input I) (O, error)
}

// Stream answers one input with a lazily produced sequence of outputs.
type Stream[I, O any] interface {
	Provider
	Execute(ctx context.Context, input I) (Iterator[O], error)
}

// Middleware decorates a RequestResponse provider.
type Middleware[I, O any] func(RequestResponse[I, O]) RequestResponse[I, O]

// Chain folds middlewares into one. The first one listed sees each call
// first: Chain(a, b)(p) == a(b(p)).
func Chain[I, O any](middlewares ...Middleware[I, O]) Middleware[I, O] {
	return func(p RequestResponse[I, O]) RequestResponse[I, O] {
		for i := range middlewares {
			p = middlewares[len(middlewares)-1-i](p)
		}
		return p
	}
}
