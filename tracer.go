package xslt

import (
	"io"
	"log/slog"
	"os"
)

// Tracer receives instruction-level events while a transform runs.
type Tracer interface {
	Enter(*Context)
	Leave(*Context)
	Error(*Context, error)
	Message(string)
}

func NoopTracer() Tracer {
	return discardTracer{}
}

type discardTracer struct{}

func (discardTracer) Enter(_ *Context) {}

func (discardTracer) Leave(_ *Context) {}

func (discardTracer) Error(_ *Context, _ error) {}

func (discardTracer) Message(_ string) {}

type stdioTracer struct {
	logger *slog.Logger
}

func Stdout() Tracer {
	return stdioTracer{
		logger: stdioLogger(os.Stdout),
	}
}

func Stderr() Tracer {
	return stdioTracer{
		logger: stdioLogger(os.Stderr),
	}
}

func stdioLogger(w io.Writer) *slog.Logger {
	opts := slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return slog.New(slog.NewTextHandler(w, &opts))
}

func (t stdioTracer) Enter(ctx *Context) {
	t.logger.Debug("start instruction", traceArgs(ctx)...)
}

func (t stdioTracer) Leave(ctx *Context) {
	t.logger.Debug("done instruction", traceArgs(ctx)...)
}

func (t stdioTracer) Error(ctx *Context, err error) {
	args := append(traceArgs(ctx), "err", err.Error())
	t.logger.Error("error while processing instruction", args...)
}

func (t stdioTracer) Message(msg string) {
	t.logger.Info(msg)
}

func traceArgs(ctx *Context) []any {
	var instr, node string
	if ctx.XslNode != nil {
		instr = ctx.XslNode.QualifiedName()
	}
	if ctx.ContextNode != nil {
		node = ctx.ContextNode.QualifiedName()
	}
	return []any{
		"instruction",
		instr,
		"node",
		node,
		"depth",
		ctx.Depth,
	}
}
