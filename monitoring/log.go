package monitoring

import (
	"github.com/higuera/dashboard/logger"
)

type logReporter struct {
	log logger.Logger
}

// NewLogReporter reports exceptions as error log entries carrying the
// enhanced properties as metadata.
func NewLogReporter(log logger.Logger) Reporter {
	return Safe(&logReporter{log: log})
}

func (l *logReporter) ReportException(err error, properties map[string]string) {
	props := Enhance(err, properties)
	metadata := make(map[string]interface{}, len(props))
	for k, v := range props {
		metadata[k] = v
	}
	l.log.With(metadata).Error("exception: %s", err)
}
