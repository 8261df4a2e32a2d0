package api

import (
	"context"
	"errors"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/outbox"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps the bridge error taxonomy onto gRPC codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, outbox.ErrEmptyText):
		code = codes.InvalidArgument
	case errors.Is(err, bridge.ErrConfiguration), errors.Is(err, bridge.ErrNotConnected):
		code = codes.FailedPrecondition
	case errors.Is(err, bridge.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, bridge.ErrNetwork), errors.Is(err, bridge.ErrProtocol):
		code = codes.Unavailable
	default:
		var pe *bridge.ProbeError
		if errors.As(err, &pe) {
			code = codes.Unavailable
		} else {
			code = codes.Internal
		}
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
