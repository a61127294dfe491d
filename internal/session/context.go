package session

import "context"

type ctxKey struct{}

type ctxValue struct {
	data  *Data
	state State
}

// NewContext returns a copy of ctx carrying the resumed session.
func NewContext(ctx context.Context, data *Data, state State) context.Context {
	return context.WithValue(ctx, ctxKey{}, ctxValue{data: data, state: state})
}

// FromContext returns the session stored by NewContext. Without one it
// reports (nil, Anonymous).
func FromContext(ctx context.Context) (*Data, State) {
	v, ok := ctx.Value(ctxKey{}).(ctxValue)
	if !ok {
		return nil, Anonymous
	}
	return v.data, v.state
}
