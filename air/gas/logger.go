package gas

import (
	"io"
	"time"

	"github.com/airframe/airframe"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig configures `Logger`.
type LoggerConfig struct {
	// Output is where request log lines are written. If nil, a
	// `*lumberjack.Logger` rotating into "air-access.log" is used.
	Output io.Writer

	// RequestIDHeader is the response header that carries the request ID
	// generated for each request. Default: "X-Request-ID".
	RequestIDHeader string
}

// Logger returns a `Gas` that logs one line per request through req.Air's
// own `Logger` (so it shares the teacher's templated leveled-log sink and
// format), tagging every request with a UUID and timing it. It also writes a
// shorter access-log line for every request to config.Output, which defaults
// to a file rotated via `lumberjack.v2`.
func Logger(config LoggerConfig) Gas {
	output := config.Output
	if output == nil {
		output = &lumberjack.Logger{
			Filename:   "air-access.log",
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	requestIDHeader := config.RequestIDHeader
	if requestIDHeader == "" {
		requestIDHeader = "X-Request-ID"
	}

	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			id := uuid.NewString()
			res.Header.Set(requestIDHeader, id)

			start := time.Now()
			err := next(req, res)
			latency := time.Since(start)

			req.Air.Logger().Infof(
				"%s %s %s %d %s %s",
				id,
				req.Method,
				req.Path,
				res.Status,
				latency,
				req.RemoteAddress(),
			)

			io.WriteString(
				output,
				id+" "+req.Method+" "+req.Path+" "+latency.String()+"\n",
			)

			return err
		}
	}
}
