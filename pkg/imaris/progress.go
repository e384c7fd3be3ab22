package imaris

import (
	"math"

	"github.com/sirupsen/logrus"
)

// LogProgress logs write progress whenever it has advanced by at least Step percentage points
type LogProgress struct {
	Step int
	Log  logrus.FieldLogger

	last int
}

// NewLogProgress returns a sink reporting every step percent on log
func NewLogProgress(step int, log logrus.FieldLogger) *LogProgress {
	if step < 1 {
		step = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogProgress{Step: step, Log: log}
}

// Report implements ProgressSink
func (p *LogProgress) Report(fraction float64, bytesWritten int64) {
	pct := int(math.Round(fraction * 100))
	if pct-p.last < p.Step {
		return
	}
	p.last = pct
	p.Log.WithField("bytes", bytesWritten).Infof("[PROGRESS] %d%%", pct)
}

// Last returns the most recently reported percentage
func (p *LogProgress) Last() int {
	return p.last
}
