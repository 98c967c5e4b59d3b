// Package mocks provides an in-memory opencensus exporter for tests
package mocks

import (
	"sync"

	"go.opencensus.io/stats/view"
)

var _ view.Exporter = &Exporter{}

// NewExporter builds a new mock opencensus exporter
func NewExporter() *Exporter {
	return &Exporter{
		views: make(map[string]*view.Data),
	}
}

// Exporter retains the last data exported for each view
type Exporter struct {
	mx    sync.Mutex
	views map[string]*view.Data
}

// ExportView retains the view data
func (e *Exporter) ExportView(viewData *view.Data) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.views[viewData.View.Name] = viewData
}

// View returns the last data exported for a view, or nil
func (e *Exporter) View(name string) *view.Data {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.views[name]
}
