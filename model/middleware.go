package model

import "context"

// Call is handed to a middleware wrap point. DoGenerate and DoStream invoke
// the next layer with Params; Model is the model being wrapped.
type Call struct {
	DoGenerate func(ctx context.Context) (*GenerateResult, error)
	DoStream   func(ctx context.Context) (*StreamResult, error)
	Params     CallOptions
	Model      LanguageModel
}

// Middleware intercepts model calls. Every field is optional. Whatever a wrap
// function returns is what the caller receives, so a middleware may observe
// the call or substitute it entirely.
type Middleware struct {
	// TransformParams rewrites the call options before they reach the wrap
	// functions and the model.
	TransformParams func(ctx context.Context, params CallOptions) (CallOptions, error)
	// WrapGenerate wraps DoGenerate.
	WrapGenerate func(ctx context.Context, call Call) (*GenerateResult, error)
	// WrapStream wraps DoStream.
	WrapStream func(ctx context.Context, call Call) (*StreamResult, error)
}

type generateFunc func(ctx context.Context, params CallOptions) (*GenerateResult, error)

type streamFunc func(ctx context.Context, params CallOptions) (*StreamResult, error)

type wrappedModel struct {
	model    LanguageModel
	generate generateFunc
	stream   streamFunc
}

// Wrap decorates m with the given middlewares. The first middleware is the
// outermost: it sees the call first and the result last.
func Wrap(m LanguageModel, mws ...Middleware) LanguageModel {
	if len(mws) == 0 {
		return m
	}

	generate := generateFunc(m.DoGenerate)
	stream := streamFunc(m.DoStream)

	for i := len(mws) - 1; i >= 0; i-- {
		generate, stream = wrapLayer(m, mws[i], generate, stream)
	}

	return &wrappedModel{model: m, generate: generate, stream: stream}
}

func wrapLayer(m LanguageModel, mw Middleware, nextGenerate generateFunc, nextStream streamFunc) (generateFunc, streamFunc) {
	transform := func(ctx context.Context, params CallOptions) (CallOptions, error) {
		if mw.TransformParams == nil {
			return params, nil
		}
		return mw.TransformParams(ctx, params)
	}

	call := func(params CallOptions) Call {
		return Call{
			DoGenerate: func(ctx context.Context) (*GenerateResult, error) { return nextGenerate(ctx, params) },
			DoStream:   func(ctx context.Context) (*StreamResult, error) { return nextStream(ctx, params) },
			Params:     params,
			Model:      m,
		}
	}

	generate := func(ctx context.Context, params CallOptions) (*GenerateResult, error) {
		params, err := transform(ctx, params)
		if err != nil {
			return nil, err
		}

		if mw.WrapGenerate == nil {
			return nextGenerate(ctx, params)
		}

		return mw.WrapGenerate(ctx, call(params))
	}

	stream := func(ctx context.Context, params CallOptions) (*StreamResult, error) {
		params, err := transform(ctx, params)
		if err != nil {
			return nil, err
		}

		if mw.WrapStream == nil {
			return nextStream(ctx, params)
		}

		return mw.WrapStream(ctx, call(params))
	}

	return generate, stream
}

// Info reports the wrapped model's info.
func (w *wrappedModel) Info() Info { return w.model.Info() }

// DoGenerate runs the generate chain.
func (w *wrappedModel) DoGenerate(ctx context.Context, opts CallOptions) (*GenerateResult, error) {
	return w.generate(ctx, opts)
}

// DoStream runs the stream chain.
func (w *wrappedModel) DoStream(ctx context.Context, opts CallOptions) (*StreamResult, error) {
	return w.stream(ctx, opts)
}
