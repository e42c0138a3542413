package gas

import (
	"fmt"
	"runtime"

	"github.com/airframe/airframe"
)

// Recover returns a `Gas` that recovers from a panic raised anywhere further
// down the `Handler` chain, logs it with a stack trace via `req.Air`'s
// logger, and turns it into a 500 response instead of taking down the
// connection goroutine it ran on.
func Recover() Gas {
	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) (err error) {
			defer func() {
				if rv := recover(); rv != nil {
					stack := make([]byte, 4<<10)
					stack = stack[:runtime.Stack(stack, false)]

					req.Air.Logger().Errorf(
						"air/gas: panic recovered: %v\n%s",
						rv,
						stack,
					)

					err = fmt.Errorf("air/gas: panic recovered: %v", rv)
				}
			}()

			return next(req, res)
		}
	}
}
