package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type LogStatus int

const (
	VERBOSE LogStatus = iota
	DEBUG
	INFO
	SUCCESS
	NEW
	REMOVE
	STOP
	WARNING
	ERROR
	FATAL
)

var statusNames = map[string]LogStatus{
	"verbose": VERBOSE,
	"debug":   DEBUG,
	"info":    INFO,
	"success": SUCCESS,
	"new":     NEW,
	"remove":  REMOVE,
	"stop":    STOP,
	"warning": WARNING,
	"error":   ERROR,
	"fatal":   FATAL,
}

func (e LogStatus) String() string {
	return []string{
		"V",
		"D",
		"I",
		"✓",
		"+",
		"-",
		"X",
		"!",
		"!!",
		"PANIC",
	}[e]
}

func (e LogStatus) Color() *color.Color {
	return []*color.Color{
		color.New(color.FgWhite, color.Faint),                 //Verbose
		color.New(color.FgWhite, color.Italic),                //Debug
		color.New(color.FgWhite),                              //Info
		color.New(color.FgHiGreen),                            //Success
		color.New(color.FgGreen, color.Italic),                //New
		color.New(color.FgYellow, color.Italic),               //Remove
		color.New(color.FgHiYellow),                           //Stop
		color.New(color.FgYellow, color.Underline),            //Warning
		color.New(color.FgHiRed, color.Bold),                  //Error
		color.New(color.FgHiRed, color.Bold, color.Underline), //PANIC
	}[e]
}

func (e LogStatus) Level() int { return int(e) }

// ParseLogStatus converts a user-supplied level name (e.g. from
// configuration) to a LogStatus. Unknown names yield INFO and false.
func ParseLogStatus(name string) (LogStatus, bool) {
	if status, ok := statusNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return status, true
	}

	return INFO, false
}

type Logger interface {
	Emit(LogStatus, string, ...any)
	Verbosef(string, ...any)
	Debugf(string, ...any)
	Infof(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)

	// Printf satisfies the logger interface goose expects
	Printf(string, ...any)
	// Fatalf satisfies the logger interface goose expects. Unlike
	// the stdlib logger, this does NOT exit the process.
	Fatalf(string, ...any)
}

type loggerImpl struct {
	name string
}

func (l *loggerImpl) Emit(status LogStatus, message string, interpolations ...any) {
	manager.emit(status, l.name, message, interpolations...)
}

func (l *loggerImpl) Verbosef(message string, args ...any) { l.Emit(VERBOSE, message, args...) }
func (l *loggerImpl) Debugf(message string, args ...any)   { l.Emit(DEBUG, message, args...) }
func (l *loggerImpl) Infof(message string, args ...any)    { l.Emit(INFO, message, args...) }
func (l *loggerImpl) Warnf(message string, args ...any)    { l.Emit(WARNING, message, args...) }
func (l *loggerImpl) Errorf(message string, args ...any)   { l.Emit(ERROR, message, args...) }
func (l *loggerImpl) Printf(message string, args ...any)   { l.Emit(INFO, ensureNewline(message), args...) }
func (l *loggerImpl) Fatalf(message string, args ...any)   { l.Emit(FATAL, ensureNewline(message), args...) }

type loggerMgr struct {
	sync.Mutex
	offset   int
	minLevel LogStatus
}

var manager = &loggerMgr{offset: 0, minLevel: INFO}

func (l *loggerMgr) emit(status LogStatus, name string, message string, interpolations ...any) {
	l.Lock()
	defer l.Unlock()

	if status < l.minLevel {
		return
	}

	if len(name) > l.offset {
		l.offset = len(name)
	}

	padding := strings.Repeat(" ", l.offset-len(name))
	msg := fmt.Sprintf("[%s] %s(%s) %s", name, padding, status, fmt.Sprintf(message, interpolations...))

	status.Color().Print(msg)
}

// SetMinLoggingLevel sets the minimum level a log message must
// have to be printed. Messages below this level are silently dropped.
func SetMinLoggingLevel(level int) {
	manager.Lock()
	defer manager.Unlock()

	manager.minLevel = LogStatus(level)
}

func Get(name string) Logger {
	return &loggerImpl{name: name}
}

func ensureNewline(message string) string {
	if strings.HasSuffix(message, "\n") {
		return message
	}

	return message + "\n"
}
