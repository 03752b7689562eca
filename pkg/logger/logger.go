// Package logger wraps logrus behind the small, colorized package-level
// API the rest of the module calls (Debug/Info/Warn/Error/Success/
// Fatal plus the Section/Banner startup decorations), so callers never
// touch a *logrus.Logger directly.
package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[37m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// successLevel is reported to logrus as Info (logrus has no built-in
// "success" level); the ColorGreen prefix is what actually distinguishes it.
const successLevel = logrus.InfoLevel

var base = logrus.New()

func init() {
	base.SetOutput(os.Stdout)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
}

// SetLevel sets the minimum level logged, using logrus's level scale.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// ShowTime enables or disables the timestamp field.
func ShowTime(show bool) {
	f, ok := base.Formatter.(*logrus.TextFormatter)
	if !ok {
		return
	}
	f.DisableTimestamp = !show
}

// SetTimeFormat sets the timestamp layout used when timestamps are shown.
func SetTimeFormat(format string) {
	f, ok := base.Formatter.(*logrus.TextFormatter)
	if !ok {
		return
	}
	f.TimestampFormat = format
}

func colorPrefix(color, tag string) string {
	return fmt.Sprintf("%s[%s]%s", color, tag, ColorReset)
}

func Debug(format string, args ...interface{}) {
	base.Debugf("%s %s", colorPrefix(ColorGray, "DEBUG"), fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	base.Infof("%s %s", colorPrefix(ColorWhite, "INFO"), fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	base.Warnf("%s %s", colorPrefix(ColorYellow, "WARN"), fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	base.Errorf("%s %s", colorPrefix(ColorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Success logs at info level with a green "SUCCESS" tag.
func Success(format string, args ...interface{}) {
	base.Logf(successLevel, "%s %s", colorPrefix(ColorGreen, "SUCCESS"), fmt.Sprintf(format, args...))
}

// Fatal logs and exits 1, same as logrus's own Fatalf but keeping the
// package's colored-prefix formatting.
func Fatal(format string, args ...interface{}) {
	base.Fatalf("%s %s", colorPrefix(ColorRed, "FATAL"), fmt.Sprintf(format, args...))
}

// InfoCyan logs an info message with a cyan tag, for callouts worth
// visually separating from ordinary info lines.
func InfoCyan(format string, args ...interface{}) {
	base.Infof("%s %s", colorPrefix(ColorCyan, "INFO"), fmt.Sprintf(format, args...))
}

// Section prints a boxed section header directly to stdout, bypassing
// logrus since it's decoration rather than a log record.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner directly to stdout.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ████████╗████████╗███╗   ██╗███████╗████████╗ ██████╗  ║
║   ╚══██╔══╝╚══██╔══╝████╗  ██║██╔════╝╚══██╔══╝██╔════╝  ║
║      ██║      ██║   ██╔██╗ ██║█████╗     ██║   ██║  ███╗ ║
║      ██║      ██║   ██║╚██╗██║██╔══╝     ██║   ██║   ██║ ║
║      ██║      ██║   ██║ ╚████║███████╗   ██║   ╚██████╔╝ ║
║      ╚═╝      ╚═╝   ╚═╝  ╚═══╝╚══════╝   ╚═╝    ╚═════╝  ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}
