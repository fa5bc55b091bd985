package serverfx

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-worker/pkg/host"
	"github.com/joeydtaylor/steeze-worker/pkg/host/nethost"
	"github.com/joeydtaylor/steeze-worker/pkg/worker"
	"go.uber.org/zap"
)

// FetchHandler serves every request through the module's fetch entry. With
// respondWithErrors set, an aborted invocation answers with the failure text
// instead of the bare status text.
func FetchHandler(mod *worker.Module, env *nethost.Env, bg *nethost.Background, maxBody int64, respondWithErrors bool, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := host.WithRuntime(r.Context(), nethost.Runtime{})

		hctx := bg.Context()
		res, err := invokeFetch(ctx, mod, nethost.NewRequest(w, r, maxBody), env, hctx)
		if err != nil {
			log.Error("fetch invocation failed",
				zap.String("requestId", chimd.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Bool("passThroughOnException", hctx.PassedThrough()),
				zap.Error(err),
			)
			status := http.StatusInternalServerError
			if errors.Is(err, worker.ErrNoExport) {
				status = http.StatusNotImplemented
			}
			msg := http.StatusText(status)
			if respondWithErrors {
				msg = failureText(err)
			}
			http.Error(w, msg, status)
			return
		}

		if err := nethost.WriteResponse(ctx, w, res); err != nil {
			log.Warn("response stream aborted",
				zap.String("requestId", chimd.GetReqID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			// the head is already out; cut the connection so the client sees truncation
			panic(http.ErrAbortHandler)
		}
	})
}

func invokeFetch(ctx context.Context, mod *worker.Module, req host.Request, env host.Env, hctx host.Context) (res host.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recovered(rec)
		}
	}()
	return mod.Fetch(ctx, req, env, hctx)
}

func failureText(err error) string {
	var fe *worker.FatalError
	if errors.As(err, &fe) && fe.Err != nil {
		return fe.Err.Error()
	}
	return err.Error()
}

func recovered(rec any) error {
	if fe, ok := rec.(*worker.FatalError); ok {
		return fe
	}
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", rec)
}
