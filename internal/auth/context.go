package auth

import (
	"context"

	"github.com/cratos-ai/cratos/pkg/coreapi"
)

type principalContextKey struct{}

// WithPrincipal attaches the resolved caller identity to the context.
func WithPrincipal(ctx context.Context, p *coreapi.Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the caller identity, if any, attached by
// WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*coreapi.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*coreapi.Principal)
	return p, ok
}
