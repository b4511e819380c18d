package provider

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies the outcome of one provider call.
type Kind int

// Result kinds.
const (
	KindSuccess Kind = iota
	KindNotFound
	KindTemporary
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNotFound:
		return "not_found"
	case KindTemporary:
		return "temporary"
	case KindPermanent:
		return "permanent"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the classified outcome of a provider call. Err carries the cause
// for Temporary and Permanent results.
type Result[T any] struct {
	Kind Kind
	Data T
	Err  error
}

// Success wraps data in a successful Result.
func Success[T any](data T) Result[T] { return Result[T]{Kind: KindSuccess, Data: data} }

// NotFound returns a Result signalling the subject is absent upstream.
func NotFound[T any]() Result[T] { return Result[T]{Kind: KindNotFound} }

// Credentials is the credential collaborator. An empty string means no
// credential is available.
type Credentials interface {
	GetCredential(ctx context.Context, name ProviderName) (string, error)
	RefreshCredential(ctx context.Context, name ProviderName) (string, error)
}

// RequestFunc performs one upstream request with the given credential.
type RequestFunc[T any] func(ctx context.Context, credential string) (T, error)

// Call runs fn and classifies its error. When needsCredential is set, the
// credential is loaded first and a missing one fails permanently without
// calling fn. An invalid-credential error triggers exactly one refresh and
// one retry. The returned error is non-nil only when ctx is done.
func Call[T any](ctx context.Context, creds Credentials, name ProviderName, needsCredential bool, fn RequestFunc[T]) (Result[T], error) {
	var credential string
	if needsCredential {
		if creds == nil {
			return permanent[T](&ErrAuthRequired{Provider: name}), nil
		}
		c, err := creds.GetCredential(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return Result[T]{}, ctx.Err()
			}
			return permanent[T](fmt.Errorf("loading credential: %w", err)), nil
		}
		if c == "" {
			return permanent[T](&ErrAuthRequired{Provider: name}), nil
		}
		credential = c
	}

	data, err := fn(ctx, credential)
	if err != nil && ctx.Err() != nil {
		return Result[T]{}, ctx.Err()
	}

	var invalid *ErrInvalidCredential
	if errors.As(err, &invalid) {
		if !needsCredential || creds == nil {
			return permanent[T](err), nil
		}
		fresh, rerr := creds.RefreshCredential(ctx, name)
		if rerr != nil {
			if ctx.Err() != nil {
				return Result[T]{}, ctx.Err()
			}
			return permanent[T](fmt.Errorf("refreshing credential: %w", rerr)), nil
		}
		if fresh == "" {
			return permanent[T](err), nil
		}
		data, err = fn(ctx, fresh)
		if err != nil && ctx.Err() != nil {
			return Result[T]{}, ctx.Err()
		}
	}

	return classify(data, err), nil
}

func classify[T any](data T, err error) Result[T] {
	if err == nil {
		return Success(data)
	}
	var notFound *ErrNotFound
	var unavailable *ErrProviderUnavailable
	switch {
	case errors.As(err, &notFound):
		return NotFound[T]()
	case errors.As(err, &unavailable):
		return Result[T]{Kind: KindTemporary, Err: err}
	default:
		// Invalid credential after retry, malformed bodies and bad requests.
		return permanent[T](err)
	}
}

func permanent[T any](err error) Result[T] {
	return Result[T]{Kind: KindPermanent, Err: err}
}
