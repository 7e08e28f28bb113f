package requestdata

import (
	"context"

	"github.com/google/uuid"
)

type key struct{}

var requestDataKey key

type RequestData struct {
	ShopID     uuid.UUID
	ShopDomain string
	SessionKey string
	TraceID    string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey).(*RequestData); ok {
		return rd
	}
	return nil
}

// TraceID returns the request trace id, or "" when the context carries none.
func TraceID(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.TraceID
	}
	return ""
}
