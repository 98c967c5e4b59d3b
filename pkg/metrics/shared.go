package metrics

import (
	"time"

	"go.opencensus.io/stats"
)

// UsageMetrics reports about calls to the operations of a repository
type UsageMetrics struct {
	Count    *stats.Int64Measure   `metric:"usageCount" description:"number of calls" tags:"root,method"`
	Failures *stats.Int64Measure   `metric:"usageFailures" description:"number of failed calls" tags:"root,method"`
	Timing   *stats.Float64Measure `metric:"timing" unit:"milliseconds" description:"duration of a call" tags:"root,method"`
}

func usageTags(root, method string) map[string]string {
	return map[string]string{"root": root, "method": method}
}

// UsedAll records a call to some method, with its timing and failure, in one go.
//
// Example:
//
//	func (r *myRepo) ItemType(...) (_ vclib.ItemType, err error) {
//	  defer func(start time.Time) {
//	    r.m.Usage.UsedAll(start, r.Name(), "ItemType")(err)
//	  }(time.Now())
//	  ...
//	}
func (u *UsageMetrics) UsedAll(start time.Time, root, method string) func(error) {
	return func(err error) {
		tags := usageTags(root, method)
		Since(start, u.Timing, tags)
		Inc(u.Count, tags)
		if err != nil {
			Inc(u.Failures, tags)
		}
	}
}

// ContentMetrics reports about the file contents read from a repository
type ContentMetrics struct {
	Count      *stats.Int64Measure   `metric:"readCount" description:"number of file contents read" tags:"root,operation"`
	Failures   *stats.Int64Measure   `metric:"readFailures" description:"number of failed reads" tags:"root,operation"`
	Size       *stats.Int64Measure   `metric:"readSize" unit:"bytes" description:"size of the file contents read" extraviews:"sum" tags:"root,operation"`
	Throughput *stats.Float64Measure `metric:"throughput" unit:"bytespersec" description:"read throughput in bytes per second" tags:"root,operation"`
}

// Read records all metrics about a read, which started at some time and ends now.
// Zero sizes do not feed the size and throughput measurements.
func (c *ContentMetrics) Read(start time.Time, root, operation string) func(int64, error) {
	return func(size int64, err error) {
		now := time.Now()
		tags := map[string]string{"root": root, "operation": operation}
		Inc(c.Count, tags)
		if err != nil {
			Inc(c.Failures, tags)
			return
		}
		if size == 0 {
			return
		}
		Int64(c.Size, size, tags)
		if elapsed := now.Sub(start); elapsed > 0 {
			Float64(c.Throughput, float64(size)/elapsed.Seconds(), tags)
		}
	}
}
