package middleware

import "context"

// Identity is the authenticated caller attached by Auth.
type Identity struct {
	UserID string
	Email  string
}

type identityKey struct{}

// IdentityFromContext returns the caller, or a zero Identity for anonymous requests.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

func UserIDFromContext(ctx context.Context) string { return IdentityFromContext(ctx).UserID }

func EmailFromContext(ctx context.Context) string { return IdentityFromContext(ctx).Email }

// WithUserID sets the user id and keeps any email already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	id := IdentityFromContext(ctx)
	id.UserID = userID
	return WithIdentity(ctx, id)
}

// WithEmail sets the email and keeps any user id already present.
func WithEmail(ctx context.Context, email string) context.Context {
	id := IdentityFromContext(ctx)
	id.Email = email
	return WithIdentity(ctx, id)
}
