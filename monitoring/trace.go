package monitoring

import (
	"context"
	"maps"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type tracerReporter struct {
	tracer trace.Tracer
}

// NewTracerReporter records each exception on a short-lived span named after
// the reporting service and operation (or event).
func NewTracerReporter(tracer trace.Tracer) Reporter {
	return Safe(&tracerReporter{tracer: tracer})
}

func spanName(properties map[string]string) string {
	service := properties["service"]
	what := properties["operation"]
	if what == "" {
		what = properties["event"]
	}
	switch {
	case service != "" && what != "":
		return service + "." + what
	case service != "":
		return service
	default:
		return "exception"
	}
}

func (t *tracerReporter) ReportException(err error, properties map[string]string) {
	props := Enhance(err, properties)
	attrs := make([]attribute.KeyValue, 0, len(props))
	for _, k := range slices.Sorted(maps.Keys(props)) {
		attrs = append(attrs, attribute.String(k, props[k]))
	}
	_, span := t.tracer.Start(context.Background(), spanName(properties), trace.WithAttributes(attrs...))
	span.RecordError(err, trace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
	span.End()
}
