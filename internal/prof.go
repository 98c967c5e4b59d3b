// Package internal profiles the viewvc commands
package internal

import (
	"os"
	"runtime"
	"runtime/pprof"

	"go.uber.org/zap"
)

// Profiler writes the CPU profile of a run, and a heap profile when it stops.
// Empty paths disable the corresponding profile.
type Profiler struct {
	CPUPath  string
	HeapPath string
	Logger   *zap.Logger

	cpu *os.File
}

// Start starts CPU profiling
func (p *Profiler) Start() error {
	if p.CPUPath == "" {
		return nil
	}
	f, err := os.Create(p.CPUPath)
	if err != nil {
		return err
	}
	if err = pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return err
	}
	p.cpu = f
	return nil
}

// Stop stops CPU profiling, and writes the heap profile
func (p *Profiler) Stop() error {
	if p.cpu != nil {
		pprof.StopCPUProfile()
		err := p.cpu.Close()
		p.cpu = nil
		if err != nil {
			return err
		}
	}
	if p.HeapPath == "" {
		return nil
	}
	runtime.GC()
	if p.Logger != nil {
		mstats := new(runtime.MemStats)
		runtime.ReadMemStats(mstats)
		p.Logger.Info("memory profile",
			zap.Uint64("MiB for heap (un-GC)", mstats.Alloc/1024/1024),
			zap.Uint64("MiB for heap (max ever)", mstats.HeapSys/1024/1024),
			zap.Int("num go routines", runtime.NumGoroutine()),
		)
	}
	return writeProf(p.HeapPath, "heap")
}

func writeProf(path string, name string) error {
	fprof, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = pprof.Lookup(name).WriteTo(fprof, 0); err != nil {
		_ = fprof.Close()
		return err
	}
	return fprof.Close()
}
