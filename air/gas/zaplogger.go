package gas

import (
	"time"

	"github.com/airframe/airframe"
	"go.uber.org/zap"
)

// ZapLogger returns a `Gas` that logs one structured entry per request
// through a caller-supplied `*zap.Logger`, for deployments that want
// structured/JSON request logs instead of (or alongside) `Logger`'s
// line-oriented ones.
func ZapLogger(z *zap.Logger) Gas {
	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			start := time.Now()
			err := next(req, res)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_addr", req.RemoteAddress()),
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				z.Error("request", fields...)
				return err
			}

			z.Info("request", fields...)

			return nil
		}
	}
}
