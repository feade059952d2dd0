package workflow

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/deliverability/internal/core"
)

// ErrorTypingInterceptor types untyped activity errors so failures are
// searchable in the Temporal UI. Errors that carry a service error kind are
// typed with "<activity>:<kind>"; validation and not-found kinds are marked
// non-retryable. Other errors are typed with the activity name.
type ErrorTypingInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (e *ErrorTypingInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &errorTypingActivityInterceptor{next: next}
}

type errorTypingActivityInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (e *errorTypingActivityInterceptor) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return e.next.Init(outbound)
}

func (e *errorTypingActivityInterceptor) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	result, err := e.next.ExecuteActivity(ctx, in)
	if err == nil {
		return result, nil
	}
	return result, typeActivityError(activity.GetInfo(ctx).ActivityType.Name, err)
}

// typeActivityError leaves already-typed application errors alone.
func typeActivityError(activityName string, err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return err
	}

	var svcErr *core.Error
	if !errors.As(err, &svcErr) {
		return temporal.NewApplicationError(err.Error(), activityName, err)
	}

	errType := activityName + ":" + string(svcErr.Kind)
	switch svcErr.Kind {
	case core.KindValidation, core.KindNotFound:
		return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
	default:
		return temporal.NewApplicationError(err.Error(), errType, err)
	}
}
