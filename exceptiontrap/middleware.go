package exceptiontrap

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// EventHandler processes one decoded event payload.
type EventHandler func(context.Context, map[string]any) error

// Wrap reports failures of the wrapped handler to the exception trap.
// Panics are recovered, reported with their stack, and returned as
// errors; returned errors are reported with the error text. Reporting is
// skipped when the trap is disabled or the reporter is nil, and a failed
// report never masks the handler's own error.
func Wrap(functionName string, reporter *Reporter, fn EventHandler, log *zap.Logger) EventHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return func(ctx context.Context, event map[string]any) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("exceptiontrap: %s panicked: %v", functionName, recovered)
				report(ctx, reporter, Report{
					FunctionName:     functionName,
					Exception:        fmt.Sprintf("%v", recovered),
					Traceback:        string(debug.Stack()),
					OriginatingEvent: event,
				}, log)
			}
		}()

		if err := fn(ctx, event); err != nil {
			report(ctx, reporter, Report{
				FunctionName:     functionName,
				Exception:        err.Error(),
				OriginatingEvent: event,
			}, log)
			return err
		}
		return nil
	}
}

func report(ctx context.Context, reporter *Reporter, r Report, log *zap.Logger) {
	if reporter == nil || !Enabled() {
		return
	}
	if _, err := reporter.Report(ctx, r); err != nil {
		log.Error("failed to report trapped exception",
			zap.String("function_name", r.FunctionName),
			zap.Error(err))
	}
}
