package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents logging levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config value such as "debug" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects how lines are written.
type Format int

const (
	// FormatText writes "time LEVEL [PREFIX] message k=v".
	FormatText Format = iota
	// FormatJSON writes one JSON object per line, for log shippers.
	FormatJSON
)

// ParseFormat converts a config value ("text" or "json") to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q", s)
	}
}

// Logger is a leveled logger with prefixes, fields and secret masking.
// Every line goes through the mask functions before it is written.
// Derived loggers share the level, format and writer of their root.
type Logger struct {
	level     Level
	format    Format
	output    io.Writer
	prefix    string
	fields    map[string]interface{}
	mu        *sync.Mutex
	maskFuncs []MaskFunc
	parent    *Logger
	now       func() time.Time
}

// MaskFunc is a function that masks sensitive data
type MaskFunc func(string) string

// Secret shapes masked in log lines and redacted report snippets.
var defaultSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(ghp_[a-zA-Z0-9]{36})`),                                                    // GitHub PAT
	regexp.MustCompile(`(?i)(gho_[a-zA-Z0-9]{36})`),                                                    // GitHub OAuth
	regexp.MustCompile(`(?i)(ghs_[a-zA-Z0-9]{36})`),                                                    // GitHub App
	regexp.MustCompile(`(?i)(github_pat_[a-zA-Z0-9]{22}_[a-zA-Z0-9]{59})`),                             // GitHub Fine-grained
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9]{20,})`),                                                    // OpenAI-style keys
	regexp.MustCompile(`(sk_live_[a-zA-Z0-9]{16,})`),                                                   // Stripe
	regexp.MustCompile(`(?i)(xox[bp]-[a-zA-Z0-9-]+)`),                                                  // Slack
	regexp.MustCompile(`(AKIA[A-Z0-9]{16})`),                                                           // AWS Access Key
	regexp.MustCompile(`(eyJ[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,})`),              // JWT
	regexp.MustCompile(`(?i)(Bearer\s+[a-zA-Z0-9._-]+)`),                                               // Bearer tokens
	regexp.MustCompile(`(?i)(api[_-]?key\s*[=:]\s*["']?[a-zA-Z0-9_-]{8,}["']?)`),                       // Generic API key
	regexp.MustCompile(`(?i)(secret\s*[=:]\s*["']?[^\s"']{8,}["']?)`),                                  // Generic secret
	regexp.MustCompile(`(?i)(password\s*[=:]\s*["']?[^\s"']{8,}["']?)`),                                // Passwords
	regexp.MustCompile(`(?i)(token\s*[=:]\s*["']?[a-zA-Z0-9._-]{8,}["']?)`),                            // Generic tokens
	regexp.MustCompile(`-----BEGIN [A-Z ]+ PRIVATE KEY-----[\s\S]*?-----END [A-Z ]+ PRIVATE KEY-----`), // Private keys
}

// Sensitive field names that should be masked in structured logging
var sensitiveFieldNames = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"api-key":       true,
	"private_key":   true,
	"privatekey":    true,
	"access_token":  true,
	"accesstoken":   true,
	"auth":          true,
	"authorization": true,
	"credential":    true,
	"credentials":   true,
}

var defaultLogger *Logger
var once sync.Once

// Default returns the default logger. It writes to stderr so that report
// output on stdout stays clean.
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(LevelInfo, os.Stderr)
	})
	return defaultLogger
}

// New creates a new logger
func New(level Level, output io.Writer) *Logger {
	l := &Logger{
		level:  level,
		output: output,
		fields: make(map[string]interface{}),
		mu:     &sync.Mutex{},
		now:    time.Now,
	}
	l.maskFuncs = append(l.maskFuncs, maskPatterns)
	return l
}

// SetLevel sets the logging level of l and every logger derived from it
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.root().level = level
}

// Level returns the current level.
func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root().level
}

// SetOutput sets the output writer of l and every logger derived from it
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.root().output = w
}

// SetFormat sets the line format of l and every logger derived from it
func (l *Logger) SetFormat(f Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.root().format = f
}

func (l *Logger) root() *Logger {
	if l.parent != nil {
		return l.parent
	}
	return l
}

// WithField returns a new logger with the field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with the fields added
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	child := l.derive()
	child.fields = newFields
	return child
}

// WithPrefix returns a new logger with the prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	child := l.derive()
	child.prefix = prefix
	return child
}

// derive returns a child sharing the parent's level, writer and lock, so
// SetLevel on the default logger reaches component loggers made earlier.
func (l *Logger) derive() *Logger {
	return &Logger{
		prefix:    l.prefix,
		fields:    l.fields,
		mu:        l.mu,
		maskFuncs: l.maskFuncs,
		parent:    l.root(),
	}
}

// maskPatterns masks known secret patterns
func maskPatterns(s string) string {
	result := s
	for _, pattern := range defaultSecretPatterns {
		result = pattern.ReplaceAllStringFunc(result, MaskString)
	}
	return result
}

// MaskString masks a string showing only first and last 4 chars
func MaskString(s string) string {
	if len(s) <= 8 {
		return "***MASKED***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}

// mask applies all mask functions to a string
func (l *Logger) mask(s string) string {
	for _, fn := range l.maskFuncs {
		s = fn(s)
	}
	return s
}

// maskValue masks a value if it's a string and the key is sensitive
func (l *Logger) maskValue(key string, value interface{}) interface{} {
	if sensitiveFieldNames[strings.ToLower(key)] {
		if str, ok := value.(string); ok {
			return MaskString(str)
		}
		return "***MASKED***"
	}
	if str, ok := value.(string); ok {
		return l.mask(str)
	}
	return value
}

func (l *Logger) sortedKeys() []string {
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *Logger) formatText(ts time.Time, level Level, msg string) string {
	var sb strings.Builder
	sb.WriteString(ts.Format(timeFormat))
	sb.WriteByte(' ')
	sb.WriteString(level.String())
	sb.WriteByte(' ')
	if l.prefix != "" {
		sb.WriteString("[" + l.prefix + "] ")
	}
	sb.WriteString(msg)
	for _, k := range l.sortedKeys() {
		fmt.Fprintf(&sb, " %s=%v", k, l.maskValue(k, l.fields[k]))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// formatJSON never lets a field shadow the fixed keys.
func (l *Logger) formatJSON(ts time.Time, level Level, msg string) string {
	entry := make(map[string]interface{}, len(l.fields)+4)
	for k, v := range l.fields {
		entry[k] = l.maskValue(k, v)
	}
	entry["time"] = ts.Format(timeFormat)
	entry["level"] = strings.ToLower(level.String())
	entry["msg"] = msg
	if l.prefix != "" {
		entry["component"] = strings.ToLower(l.prefix)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data, _ = json.Marshal(map[string]string{
			"time":  entry["time"].(string),
			"level": "error",
			"msg":   "unencodable log fields: " + err.Error(),
		})
	}
	return string(data) + "\n"
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	root := l.root()
	if level < root.level {
		return
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	msg = l.mask(msg)

	ts := root.now()
	line := l.formatText(ts, level, msg)
	if root.format == FormatJSON {
		line = l.formatJSON(ts, level, msg)
	}
	_, _ = io.WriteString(root.output, line)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// SetLevel sets the level of the default logger
func SetLevel(level Level) {
	Default().SetLevel(level)
}

// SetFormat sets the line format of the default logger
func SetFormat(f Format) {
	Default().SetFormat(f)
}

// MaskSecrets masks all known secret patterns in a string
func MaskSecrets(s string) string {
	return maskPatterns(s)
}
