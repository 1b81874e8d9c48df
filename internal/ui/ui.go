// Package ui prints human-facing diagnostics. Everything goes to stderr:
// stdout belongs to the agent running in the container.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/majorcontext/warden/internal/fault"
)

var (
	mu     sync.Mutex
	writer io.Writer = os.Stderr
	color            = detectColor(os.Stderr)
)

// SetWriter overrides the output writer. nil restores stderr.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	writer = w
}

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	color = enabled
}

// ColorEnabled reports whether stderr color is enabled.
func ColorEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return color
}

func ansi(code, s string) string {
	if !ColorEnabled() {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Bold returns s wrapped in bold ANSI codes.
func Bold(s string) string { return ansi("1", s) }

// Dim returns s wrapped in dim ANSI codes.
func Dim(s string) string { return ansi("2", s) }

func Green(s string) string  { return ansi("32", s) }
func Red(s string) string    { return ansi("31", s) }
func Yellow(s string) string { return ansi("33", s) }
func Cyan(s string) string   { return ansi("36", s) }

// OKTag returns a green "✓" for success indicators.
func OKTag() string { return Green("✓") }

// FailTag returns a red "✗" for failure indicators.
func FailTag() string { return Red("✗") }

// WarnTag returns a yellow "⚠" for warning indicators.
func WarnTag() string { return Yellow("⚠") }

// InfoTag returns a cyan "ℹ" for info indicators.
func InfoTag() string { return Cyan("ℹ") }

func emit(s string) {
	mu.Lock()
	w := writer
	mu.Unlock()
	fmt.Fprint(w, s)
}

// Section prints a bold title with a thin underline.
func Section(title string) {
	emit(Bold(title) + "\n" + Dim(strings.Repeat("─", len(title))) + "\n")
}

// Warn prints a user-facing warning.
func Warn(msg string) {
	emit(fmt.Sprintf("%s %s\n", Yellow("Warning:"), msg))
}

// Warnf prints a formatted user-facing warning.
func Warnf(format string, args ...any) {
	Warn(fmt.Sprintf(format, args...))
}

// Error prints a user-facing error.
func Error(msg string) {
	emit(fmt.Sprintf("%s %s\n", Red("Error:"), msg))
}

// Errorf prints a formatted user-facing error.
func Errorf(format string, args ...any) {
	Error(fmt.Sprintf(format, args...))
}

// Info prints a user-facing message with no prefix.
func Info(msg string) {
	emit(msg + "\n")
}

// Infof prints a formatted user-facing message with no prefix.
func Infof(format string, args ...any) {
	emit(fmt.Sprintf(format, args...) + "\n")
}

// ReportError prints err and, for known failure kinds, a hint on what to
// try next.
func ReportError(err error) {
	if err == nil {
		return
	}
	Error(err.Error())
	if h := Hint(err); h != "" {
		emit(Dim("  "+h) + "\n")
	}
}

// Hint suggests a fix for err, or returns "".
func Hint(err error) string {
	var cerr *fault.ContainerError
	if errors.As(err, &cerr) {
		switch cerr.Kind {
		case fault.SocketNotFound:
			return "Is the container engine running? Set WARDEN_ENGINE_HOST or engine.host to point elsewhere."
		case fault.PermissionDenied:
			return "Add your user to the engine's group or use a rootless engine socket."
		case fault.HealthCheckFailed, fault.ConnectionFailed:
			return "Run 'warden ping' to check the engine endpoint."
		}
		return ""
	}
	var ferr *fault.FilesystemError
	if errors.As(err, &ferr) && ferr.Kind == fault.PathEscape {
		return "Add the directory to workspace.allowed_roots in ~/.warden/config.yaml."
	}
	var perr *fault.ProtocolError
	if errors.As(err, &perr) && perr.Kind == fault.MessageTooLarge {
		return "Raise protocol.max_message_size if the agent legitimately sends large messages."
	}
	var cfgErr *fault.ConfigError
	if errors.As(err, &cfgErr) {
		return fmt.Sprintf("Check %q in your configuration or flags.", cfgErr.Field)
	}
	return ""
}
