package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type levelStyle struct {
	name     string
	level    *color.Color
	category *color.Color
}

var styles = map[LogLevel]levelStyle{
	DEBUG: {"DEBUG", color.New(color.FgCyan), color.New(color.FgCyan, color.Bold)},
	INFO:  {"INFO", color.New(color.FgGreen), color.New(color.FgGreen, color.Bold)},
	WARN:  {"WARN", color.New(color.FgYellow), color.New(color.FgYellow, color.Bold)},
	ERROR: {"ERROR", color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
	FATAL: {"FATAL", color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
}

var (
	clockColor  = color.New(color.FgBlue)
	callerColor = color.New(color.FgMagenta)
)

func (lv LogLevel) String() string {
	if s, ok := styles[lv]; ok {
		return s.name
	}
	return "INFO"
}

// ParseLevel maps LOG_LEVEL values; anything unknown is INFO.
func ParseLevel(s string) LogLevel {
	for lv, st := range styles {
		if strings.EqualFold(s, st.name) && lv != FATAL {
			return lv
		}
	}
	return INFO
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	mu       sync.Mutex
	terminal io.Writer
	logFile  io.WriteCloser
	minLevel LogLevel

	// dir and day drive the daily file switch; empty dir means a fixed sink.
	dir string
	day string
}

// NewLogger writes colored lines to stdout and JSON lines to
// $LOG_DIR/eventsnow-YYYY-MM-DD.log (default ./logs). The file follows the date.
func NewLogger() *Logger {
	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	l := &Logger{terminal: os.Stdout, minLevel: ParseLevel(os.Getenv("LOG_LEVEL")), dir: dir}
	name, err := l.rotate(time.Now())
	if err != nil {
		log.Fatal("Failed to create log file:", err)
	}
	l.Info("LOGGER", fmt.Sprintf("Logging to %s", name))
	return l
}

// NewNop returns a logger that drops everything. Fatal still exits.
func NewNop() *Logger {
	return &Logger{terminal: io.Discard, minLevel: DEBUG}
}

// New builds a logger over arbitrary writers, mostly for tests that assert on output.
func New(terminal io.Writer, file io.WriteCloser) *Logger {
	return &Logger{terminal: terminal, logFile: file, minLevel: DEBUG}
}

// rotate opens the file for now's date if it differs from the open one. Caller holds mu or owns l.
func (l *Logger) rotate(now time.Time) (string, error) {
	day := now.Format("2006-01-02")
	name := filepath.Join(l.dir, "eventsnow-"+day+".log")
	if day == l.day {
		return name, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return "", err
	}
	if l.logFile != nil {
		l.logFile.Close()
	}
	l.logFile, l.day = f, day
	return name, nil
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}

	now := time.Now()
	entry := LogEntry{
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		entry.File, entry.Line = filepath.Base(file), line
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.terminal, terminalLine(level, entry))

	if l.dir != "" {
		if _, err := l.rotate(now); err != nil {
			fmt.Fprintf(l.terminal, "logger: %v\n", err)
		}
	}
	if l.logFile != nil {
		b, _ := json.Marshal(entry)
		l.logFile.Write(append(b, '\n'))
	}
}

func terminalLine(level LogLevel, entry LogEntry) string {
	st, ok := styles[level]
	if !ok {
		st = styles[INFO]
	}

	var b strings.Builder
	b.WriteString(clockColor.Sprint(entry.Timestamp[11:19]))
	b.WriteByte(' ')
	b.WriteString(st.level.Sprintf("%-5s", entry.Level))
	b.WriteByte(' ')
	b.WriteString(st.category.Sprintf("[%-9s]", entry.Category))
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if entry.File != "" && entry.Line > 0 {
		b.WriteString(callerColor.Sprintf(" (%s:%d)", entry.File, entry.Line))
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) Debug(category, message string) { l.log(DEBUG, category, message) }

func (l *Logger) Info(category, message string) { l.log(INFO, category, message) }

func (l *Logger) Warn(category, message string) { l.log(WARN, category, message) }

func (l *Logger) Error(category, message string) { l.log(ERROR, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// ---------------- Component helpers ----------------

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

// LogPayment → orderRef is "#<id>" or a provider payment id
func (l *Logger) LogPayment(action, orderRef, message string) {
	l.Info("PAYMENT", fmt.Sprintf("[%s] %s - %s", action, orderRef, message))
}

func (l *Logger) LogBot(command string, chatID int64, message string) {
	l.Info("BOT", fmt.Sprintf("[%s] chat=%d - %s", command, chatID, message))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
}
