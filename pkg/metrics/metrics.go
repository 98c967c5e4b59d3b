// Package metrics collects opencensus measurements, declared as tagged structs,
// and exports them to some influxdb backend.
package metrics

import (
	"path"
	"reflect"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/viewvc/viewvc-sub000/pkg/metrics/exporters/influxdb"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

const (
	// KB stands for kilo bytes (1024 bytes)
	KB = units.KiB

	// MB stands for mega bytes (1024 kilo bytes)
	MB = units.MiB

	unitCount    = "count"
	unitSumBytes = "sumbytes"
	unitBps      = "bps"
)

var (
	// global settings for metrics
	mp       *settings
	initOnce sync.Once
)

type settings struct {
	basePath string
	exporter FlushExporter

	allMetrics []stats.Measure
	allViews   []*view.View

	// registered modules, by location
	modules   map[string]interface{}
	exclusive sync.Mutex
}

func defaultSettings() *settings {
	return &settings{
		modules: make(map[string]interface{}),
	}
}

// Option defines some options to the metrics initialization
type Option func(*settings)

// WithBasePath prefixes the names of all registered measures
func WithBasePath(location string) Option {
	return func(s *settings) {
		s.basePath = location
	}
}

// WithExporter conveys metrics to some backend collector.
// The default is an influxdb exporter on localhost.
func WithExporter(exporter view.Exporter) Option {
	return func(s *settings) {
		if exporter != nil {
			s.exporter = flusher(exporter)
		}
	}
}

// DefaultExporter returns a metrics exporter for an influxdb backend, with db "viewvc" and time series "metrics".
func DefaultExporter(storeOpts []influxdb.StoreOption, opts ...influxdb.Option) (view.Exporter, error) {
	sink, err := influxdb.NewStore(append([]influxdb.StoreOption{
		influxdb.WithDatabase("viewvc"),
		influxdb.WithNameAsTag("metrics"),
	}, storeOpts...)...)
	if err != nil {
		return nil, err
	}
	return influxdb.NewExporter(append([]influxdb.Option{
		influxdb.WithStore(sink),
		influxdb.WithTags(map[string]string{"service": "viewvc"}),
	}, opts...)...), nil
}

func newSettings(opts ...Option) *settings {
	s := defaultSettings()
	for _, apply := range opts {
		apply(s)
	}

	if s.exporter == nil {
		if exporter, err := DefaultExporter(nil); err == nil {
			s.exporter = flusher(exporter)
		}
	}

	s.RegisterExporter()
	return s
}

func (s *settings) EnsureMetrics(location string, m interface{}) interface{} {
	s.exclusive.Lock()
	defer s.exclusive.Unlock()
	location = path.Join(s.basePath, location)

	if existing, ok := s.modules[location]; ok {
		if reflect.TypeOf(existing) != reflect.TypeOf(m) {
			panic("trying to re-register existing metrics module with a different type")
		}
		return existing
	}
	declareAll(location, m, s.addMeasure)
	s.modules[location] = m
	return m
}

// Flush collects all remaining data for registered views and exports them
func (s *settings) Flush() {
	if s.exporter == nil {
		return
	}
	for _, v := range s.allViews {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue // ignore errors when pushing metrics
		}
		now := time.Now()
		s.exporter.Flush(&view.Data{
			View:  v,
			Start: now, // the last snapshot time of the background worker is not known
			End:   now,
			Rows:  rows,
		})
	}
}

// RegisterExporter registers the exporter to the opencensus library
func (s *settings) RegisterExporter() {
	if s.exporter == nil {
		return
	}
	view.RegisterExporter(s.exporter)
}

// addMeasure creates a measure with a default view according to its unit:
//   - counters (count or no unit) get a count view
//   - bytes get a size distribution view
//   - sumbytes get a cumulated size view
//   - milliseconds get a duration distribution view
//   - bytespersec get a throughput distribution view
//
// Extra views aggregate the same measure differently.
func (s *settings) addMeasure(d declaration, typ reflect.Type) stats.Measure {
	u, dist := unitAndDist(d.unit)

	var measure stats.Measure
	if typ == float64Measure {
		measure = stats.Float64(d.name, d.description, u)
	} else {
		measure = stats.Int64(d.name, d.description, u)
	}
	s.allMetrics = append(s.allMetrics, measure)

	s.addView(&view.View{
		Name:        d.name,
		Description: describeViewFromDist(d.description, dist),
		Measure:     measure,
		Aggregation: dist,
		TagKeys:     d.keys,
	})

	for _, extra := range d.extra {
		var agg *view.Aggregation
		switch extra {
		case unitCount:
			agg = view.Count()
		case "sum":
			agg = view.Sum()
		case "lastvalue":
			agg = view.LastValue()
		default:
			continue
		}
		s.addView(&view.View{
			Name:        describeViewFromDist(d.name, agg),
			Description: describeViewFromDist(d.description, agg),
			Measure:     measure,
			Aggregation: agg,
			TagKeys:     d.keys,
		})
	}
	return measure
}

func (s *settings) addView(v *view.View) {
	s.allViews = append(s.allViews, v)
	_ = view.Register(v)
}

func durationDistribution() *view.Aggregation {
	// buckets in milliseconds
	return view.Distribution(
		1, 5, 10, 50,
		100, 300, 500, 700, 900,
		1000, 2000, 5000,
		10000, 30000, 60000,
	)
}

func bytesDistribution() *view.Aggregation {
	// buckets in bytes
	return view.Distribution(
		500,
		1*KB, 5*KB, 10*KB, 50*KB,
		100*KB, 500*KB,
		1*MB, 5*MB, 10*MB, 50*MB,
		100*MB,
	)
}

func throughputDistribution() *view.Aggregation {
	return view.Distribution(
		1*KB, 5*KB, 50*KB, 100*KB,
		1*MB,
		10*MB,
		50*MB,
		100*MB,
	)
}

func unitAndDist(unit string) (string, *view.Aggregation) {
	switch unit {
	case "milliseconds":
		return stats.UnitMilliseconds, durationDistribution()
	case "bytes":
		return stats.UnitBytes, bytesDistribution()
	case unitSumBytes:
		return stats.UnitBytes, view.Sum()
	case "bytespersec", unitBps:
		return unitBps, throughputDistribution()
	case unitCount:
		fallthrough
	default:
		return stats.UnitDimensionless, view.Count()
	}
}

func describeFromUnit(name, unit string) string {
	switch unit {
	case unitSumBytes:
		return name + " cumulated bytes"
	case "", unitCount:
		return name + " counter"
	default:
		return name + " in " + unit
	}
}

func describeViewFromDist(desc string, in *view.Aggregation) string {
	if in == nil {
		return desc
	}
	switch in.Type {
	case view.AggTypeCount:
		return desc + " [count]"
	case view.AggTypeSum:
		return desc + " [cumulated]"
	case view.AggTypeDistribution:
		return desc + " [distribution]"
	case view.AggTypeLastValue:
		return desc + " [last]"
	case view.AggTypeNone:
		fallthrough
	default:
		return desc
	}
}

// FlushExporter is a view exporter that knows how to flush metrics.
//
// Flushes may run concurrently with the background exporter of opencensus.
type FlushExporter interface {
	view.Exporter
	Flush(*view.Data)
}

func flusher(e view.Exporter) FlushExporter {
	if f, ok := e.(FlushExporter); ok {
		return f
	}
	return &simpleFlusher{
		e: e,
	}
}

type simpleFlusher struct {
	e view.Exporter
	m sync.RWMutex
}

func (f *simpleFlusher) ExportView(viewData *view.Data) {
	f.m.RLock()
	f.e.ExportView(viewData)
	f.m.RUnlock()
}

func (f *simpleFlusher) Flush(viewData *view.Data) {
	f.m.Lock()
	f.e.ExportView(viewData)
	f.m.Unlock()
}
