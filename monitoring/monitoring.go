// Package monitoring is the sink for exceptions raised by the cache tiers and
// their consumers. Reporting is fire-and-forget: a Reporter must never fail
// or panic back into the code that reports.
package monitoring

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Reporter receives exceptions together with string properties describing
// where they happened (service, operation, key, event).
type Reporter interface {
	ReportException(err error, properties map[string]string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(err error, properties map[string]string)

func (f ReporterFunc) ReportException(err error, properties map[string]string) {
	f(err, properties)
}

// Nop discards every report.
var Nop Reporter = ReporterFunc(func(error, map[string]string) {})

type safeReporter struct {
	next Reporter
}

func (s *safeReporter) ReportException(err error, properties map[string]string) {
	if s.next == nil || err == nil {
		return
	}
	defer func() { _ = recover() }()
	s.next.ReportException(err, properties)
}

// Safe wraps r so that nil errors are dropped and panics are swallowed.
func Safe(r Reporter) Reporter {
	if r == nil {
		return Nop
	}
	if _, ok := r.(*safeReporter); ok {
		return r
	}
	return &safeReporter{next: r}
}

type multiReporter []Reporter

func (m multiReporter) ReportException(err error, properties map[string]string) {
	for _, r := range m {
		Safe(r).ReportException(err, properties)
	}
}

// Multi fans a report out to every reporter. Each one is isolated from the others.
func Multi(reporters ...Reporter) Reporter {
	return multiReporter(reporters)
}

// Enhance returns a copy of properties with errorName and timestamp added.
func Enhance(err error, properties map[string]string) map[string]string {
	out := make(map[string]string, len(properties)+2)
	maps.Copy(out, properties)
	out["errorName"] = fmt.Sprintf("%T", errors.UnwrapAll(err))
	out["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	return out
}

// Report is a single exception captured by a Recorder.
type Report struct {
	Err        error
	Properties map[string]string
}

// Recorder keeps every report in memory. It is meant for tests.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

var _ Reporter = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ReportException(err error, properties map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Err: err, Properties: maps.Clone(properties)})
}

// Reports returns a copy of everything recorded so far.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Matching returns the reports whose properties contain every given key/value pair.
func (r *Recorder) Matching(properties map[string]string) []Report {
	var found []Report
	for _, report := range r.Reports() {
		ok := true
		for k, v := range properties {
			if report.Properties[k] != v {
				ok = false
				break
			}
		}
		if ok {
			found = append(found, report)
		}
	}
	return found
}
