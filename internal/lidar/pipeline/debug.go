package pipeline

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams for the pipeline package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[pipeline] ", ops)
	diagLogger = newLogger("[pipeline] ", diag)
	traceLogger = newLogger("[pipeline] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (stopped streams, dropped data).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs to the diag stream (stream lifecycle, skipped packets).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-packet and per-frame telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}

// withSensor prepends the stream's sensor id to a log call's arguments.
func (s *Stream) withSensor(args []interface{}) []interface{} {
	return append([]interface{}{s.cfg.SensorID}, args...)
}

func (s *Stream) opsf(format string, args ...interface{}) {
	opsf("[%s] "+format, s.withSensor(args)...)
}

func (s *Stream) diagf(format string, args ...interface{}) {
	diagf("[%s] "+format, s.withSensor(args)...)
}

func (s *Stream) tracef(format string, args ...interface{}) {
	if traceLogger == nil {
		return
	}
	tracef("[%s] "+format, s.withSensor(args)...)
}
