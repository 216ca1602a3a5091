package logging

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogData collects fields and timings over one request and emits them as a
// single entry.
type LogData struct {
	mu        sync.Mutex
	timeItems map[string]int64
	dataItems map[string]any
	logger    logrus.FieldLogger
}

func NewLogData(logger logrus.FieldLogger) *LogData {
	return &LogData{
		timeItems: make(map[string]int64),
		dataItems: make(map[string]any),
		logger:    logger,
	}
}

// AddTiming starts a timer; calling the returned func records the elapsed
// milliseconds under entryName.
func (l *LogData) AddTiming(entryName string) func() {
	startTime := time.Now()

	return func() {
		elapsed := time.Since(startTime).Milliseconds()
		l.mu.Lock()
		defer l.mu.Unlock()
		l.timeItems[entryName] = elapsed
	}
}

func (l *LogData) AddData(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dataItems[key] = value
}

func (l *LogData) Log() *logrus.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := make(logrus.Fields, len(l.dataItems)+len(l.timeItems))
	for key, value := range l.dataItems {
		fields[key] = value
	}
	for key, value := range l.timeItems {
		fields[key] = value
	}
	return l.logger.WithFields(fields)
}
