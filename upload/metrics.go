package upload

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/imrenagi/go-signed-upload/upload"

var (
	meter  = otel.Meter(instrumentationName)
	tracer = otel.Tracer(instrumentationName)
)

const (
	outcomeSuccess     = "success"
	outcomeMissingFile = "missing_file"
	outcomeError       = "error"
)

type instruments struct {
	uploads metric.Int64Counter
	bytes   metric.Int64Histogram
	swept   metric.Int64Counter
}

func newInstruments() instruments {
	uploads, err := meter.Int64Counter("uploader.uploads",
		metric.WithDescription("Upload requests by outcome"))
	if err != nil {
		otel.Handle(err)
	}
	bytes, err := meter.Int64Histogram("uploader.upload.bytes",
		metric.WithDescription("Size of files transferred to the object store"),
		metric.WithUnit("By"))
	if err != nil {
		otel.Handle(err)
	}
	swept, err := meter.Int64Counter("uploader.staged_files.removed",
		metric.WithDescription("Staged files removed by the cleanup sweep"))
	if err != nil {
		otel.Handle(err)
	}
	return instruments{
		uploads: uploads,
		bytes:   bytes,
		swept:   swept,
	}
}

func (i instruments) recordOutcome(ctx context.Context, outcome string) {
	if i.uploads == nil {
		return
	}
	i.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (i instruments) recordSize(ctx context.Context, size int64) {
	if i.bytes == nil {
		return
	}
	i.bytes.Record(ctx, size)
}

func (i instruments) recordSwept(ctx context.Context, n int) {
	if i.swept == nil {
		return
	}
	i.swept.Add(ctx, int64(n))
}
