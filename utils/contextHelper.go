package utils

import (
	"context"

	"github.com/Roon627/ITnVend-sub003/appctx"
)

var (
	ContextKeyActorId       = appctx.ContextKeyActorId
	ContextKeyActorName     = appctx.ContextKeyActorName
	ContextKeyOutletId      = appctx.ContextKeyOutletId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetActorIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorId)
}

func GetActorNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorName)
}

func GetOutletIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyOutletId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

// ActorNameOrSystem is what audit records stamp when no actor is present,
// e.g. background jobs and migrations.
func ActorNameOrSystem(ctx context.Context) string {
	if name, ok := GetActorNameFromContext(ctx); ok && name != "" {
		return name
	}
	if id, ok := GetActorIdFromContext(ctx); ok && id != "" {
		return id
	}
	return "system"
}

func SetActorIdInContext(ctx context.Context, actorId string) context.Context {
	return appctx.Set(ctx, ContextKeyActorId, actorId)
}

func SetActorNameInContext(ctx context.Context, actorName string) context.Context {
	return appctx.Set(ctx, ContextKeyActorName, actorName)
}

func SetOutletIdInContext(ctx context.Context, outletId int) context.Context {
	return appctx.Set(ctx, ContextKeyOutletId, outletId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
