package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxMemberID      contextKey = "member_id"
	ctxMemberSubject contextKey = "member_subject"
	ctxOperator      contextKey = "operator"
)

// MemberIDFromContext returns the local profile id of the authenticated member.
func MemberIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxMemberID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func MemberSubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxMemberSubject).(string); ok {
		return v
	}
	return ""
}

func IsOperator(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(ctxOperator).(bool)
	return v
}

// WithMember injects the member identity into ctx.
func WithMember(ctx context.Context, memberID uuid.UUID, subject string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxMemberID, memberID)
	return context.WithValue(ctx, ctxMemberSubject, subject)
}
