// obslog.go — named-logger registry shared by every broker component.
// Adapted from getsops-sops/logging: one logrus.Logger per component
// name, formatted with a bracketed, colorized name prefix.
package obslog

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// textFormatter extends logrus's TextFormatter with the logger's name.
type textFormatter struct {
	name string
	logrus.TextFormatter
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b, err := f.TextFormatter.Format(entry)
	if err != nil {
		return nil, err
	}
	name := color.New(color.Bold).Sprintf("[%s]", f.name)
	return []byte(fmt.Sprintf("%s %s", name, b)), nil
}

var (
	mu      sync.Mutex
	loggers = make(map[string]*logrus.Logger)
	level   = logrus.WarnLevel
)

// For returns the named logger, creating it on first use.
func For(name string) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[name]; ok {
		return l
	}

	l := logrus.New()
	l.SetLevel(level)
	l.Formatter = &textFormatter{name: name}
	loggers[name] = l
	return l
}

// SetLevel sets the level on every logger created so far, and on every
// logger created afterward.
func SetLevel(lvl logrus.Level) {
	mu.Lock()
	defer mu.Unlock()

	level = lvl
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
}
