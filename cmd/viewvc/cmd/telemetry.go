package cmd

import (
	"io"

	"github.com/opentracing/opentracing-go"
	jaeger "github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegerzap "github.com/uber/jaeger-client-go/log/zap"
	"github.com/viewvc/viewvc-sub000/internal"
	"github.com/viewvc/viewvc-sub000/pkg/dlogger"
	"github.com/viewvc/viewvc-sub000/pkg/metrics"
	"go.uber.org/zap"
)

var (
	profiler *internal.Profiler
	closers  []io.Closer
)

// newTracer reports every span to a jaeger agent
func newTracer(agent string, l *zap.Logger) (opentracing.Tracer, error) {
	jcfg := jaegercfg.Configuration{
		ServiceName: "viewvc",
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LocalAgentHostPort: agent,
		},
	}
	tr, closer, err := jcfg.NewTracer(jaegercfg.Logger(jaegerzap.NewLogger(l)))
	if err != nil {
		return nil, err
	}
	closers = append(closers, closer)
	return tr, nil
}

func startProfiler() {
	if viewvcFlags.root.cpuProf == "" && viewvcFlags.root.memProf == "" {
		return
	}
	logger, err := dlogger.GetLogger(viewvcFlags.root.logLevel, dlogger.Console())
	if err != nil {
		wrapFatalln("create logger", err)
		return
	}
	profiler = &internal.Profiler{
		CPUPath:  viewvcFlags.root.cpuProf,
		HeapPath: viewvcFlags.root.memProf,
		Logger:   logger,
	}
	if err = profiler.Start(); err != nil {
		wrapFatalln("start profiling", err)
	}
}

// stopTelemetry flushes metrics and traces, and writes profiles, once a command is done
func stopTelemetry() {
	metrics.Flush()
	for _, closer := range closers {
		_ = closer.Close()
	}
	closers = nil

	if profiler != nil {
		if err := profiler.Stop(); err != nil {
			wrapFatalln("write profile", err)
		}
		profiler = nil
	}
}
