package api

import (
	"context"

	"github.com/terra-clan/judgehub/internal/auth"
)

type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFromContext extracts the authenticated caller from context
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, ok := ctx.Value(principalContextKey).(*auth.Principal)
	if !ok {
		return nil
	}
	return p
}

// ContextWithPrincipal adds the authenticated caller to context
func ContextWithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
