package middleware

import (
	"context"
	"net/http"

	"github.com/graph-gophers/dataloader"

	"github.com/finledger/collab/internal/repository"
	"github.com/finledger/collab/internal/versionloader"
)

type ctxKey string

const versionLoaderKey ctxKey = "versionLoader"

// DataLoaderMiddleware attaches a per-request version loader to the context
func DataLoaderMiddleware(repo repository.VersionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := versionloader.NewVersionLoader(repo)

			ctx := context.WithValue(r.Context(), versionLoaderKey, loader.Loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VersionLoaderFromContext retrieves the dataloader from context
func VersionLoaderFromContext(ctx context.Context) *dataloader.Loader {
	if l, ok := ctx.Value(versionLoaderKey).(*dataloader.Loader); ok {
		return l
	}
	return nil
}
