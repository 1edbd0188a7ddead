package internal

// Notifier receives engine notifications. Implementations must not block
// for long; they are called with the engine lock held.
type Notifier interface {
	Status(message string, severity Severity)
	Progress(count int, authorCounts map[string]int)
	SessionEnded(count int)
}

// MultiNotifier fans notifications out to several notifiers
type MultiNotifier []Notifier

func (m MultiNotifier) Status(message string, severity Severity) {
	for _, n := range m {
		n.Status(message, severity)
	}
}

func (m MultiNotifier) Progress(count int, authorCounts map[string]int) {
	for _, n := range m {
		n.Progress(count, authorCounts)
	}
}

func (m MultiNotifier) SessionEnded(count int) {
	for _, n := range m {
		n.SessionEnded(count)
	}
}

// LogNotifier writes notifications to the log
type LogNotifier struct{}

func (LogNotifier) Status(message string, severity Severity) {
	switch severity {
	case SeverityError:
		LogError("%s", message)
	case SeverityWarning:
		LogWarn("%s", message)
	default:
		LogInfo("%s", message)
	}
}

func (LogNotifier) Progress(count int, authorCounts map[string]int) {
	LogInfo("Progress: %d record(s), %d author(s)", count, len(authorCounts))
}

func (LogNotifier) SessionEnded(count int) {
	LogInfo("Session ended with %d record(s)", count)
}

type nopNotifier struct{}

func (nopNotifier) Status(string, Severity) {}
func (nopNotifier) Progress(int, map[string]int) {}
func (nopNotifier) SessionEnded(int) {}
