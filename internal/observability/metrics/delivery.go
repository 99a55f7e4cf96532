package metrics

import (
	"time"

	obserrors "github.com/courierd/courierd/internal/observability/errors"
	"github.com/courierd/courierd/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// DeliveryMetric captures details about a delivery lifecycle event for metric emission.
type DeliveryMetric struct {
	Channel    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitDeliveryLifecycle emits standardised delivery lifecycle metrics.
func EmitDeliveryLifecycle(sink statsd.Sink, in DeliveryMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"channel":    in.Channel,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("delivery.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("delivery.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
