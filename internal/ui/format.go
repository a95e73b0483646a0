package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	"netpromote/pkg/errors"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(color string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, color)
		}
		return text
	}
}

// ShowHeader displays a formatted header
func ShowHeader(title string) {
	width := 50
	padding := (width - len(title) - 2) / 2
	if padding < 0 {
		padding = 0
	}
	right := width - 2 - padding - len(title)
	if right < 0 {
		right = 0
	}

	fmt.Println("\n+" + strings.Repeat("-", width-2) + "+")
	fmt.Printf("|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", right),
	)
	fmt.Println("+" + strings.Repeat("-", width-2) + "+")
}

// ShowError displays a formatted error message. Suggestions carried by an
// AppError are listed; otherwise a tip is derived from the message.
func ShowError(err error) {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		fmt.Printf("\n%s %s\n", ColorError("ERROR:"), appErr.Message)
		if appErr.Cause != nil {
			fmt.Printf("  %s\n", ColorDim(appErr.Cause.Error()))
		}
		for _, s := range appErr.Suggestions {
			fmt.Printf("  %s %s\n", ColorInfo("TIP:"), s)
		}
		if len(appErr.Suggestions) > 0 {
			return
		}
	} else {
		fmt.Printf("\n%s\n", ColorError("ERROR:"))
		for i, line := range strings.Split(err.Error(), "\n") {
			if i == 0 {
				fmt.Printf("  %s\n", line)
			} else {
				fmt.Printf("  %s\n", ColorDim(line))
			}
		}
	}

	if suggestion := getSuggestion(err.Error()); suggestion != "" {
		fmt.Printf("\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(suggestion))
	}
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	fmt.Printf("%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	fmt.Printf("%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	fmt.Printf("%s %s\n", ColorInfo("INFO:"), message)
}

// PrintSection prints a section header
func PrintSection(title string) {
	fmt.Printf("\n%s %s\n", ColorBold("▶"), ColorBold(title))
	fmt.Println(strings.Repeat("─", 50))
}

// PrintKeyValue prints a key-value pair in a formatted way
func PrintKeyValue(key, value string) {
	fmt.Printf("  %-20s %s\n", ColorDim(key+":"), value)
}

// PrintList prints items as a bullet list, eliding the middle of long lists
func PrintList(items []string) {
	if len(items) <= 10 {
		for _, item := range items {
			fmt.Printf("  • %s\n", item)
		}
		return
	}
	for _, item := range items[:5] {
		fmt.Printf("  • %s\n", item)
	}
	fmt.Printf("  %s\n", ColorDim(fmt.Sprintf("... %d more ...", len(items)-10)))
	for _, item := range items[len(items)-5:] {
		fmt.Printf("  • %s\n", item)
	}
}

// getSuggestion returns helpful suggestions based on error messages
func getSuggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "authentication"):
		return "Store a token with your git credential setup or set GIT_INTERNAL_NET_TOKEN"
	case strings.Contains(lower, "not a git repository"), strings.Contains(lower, "repository does not exist"):
		return "Run the command inside the configuration repository or pass --repo"
	case strings.Contains(lower, "merge conflict"):
		return "Run 'netpromote conflicts detect' to inspect the conflicting files"
	case strings.Contains(lower, "not fast-forward"):
		return "Update the target branch from the source branch manually, then retry"
	case strings.Contains(lower, "permission denied"):
		return "Check the file permissions of the working copy and state file"
	default:
		return ""
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}

// formatRelativeTime formats time as relative (e.g., "2 hours ago")
func formatRelativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case duration < 7*24*time.Hour:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case duration < 30*24*time.Hour:
		weeks := int(duration.Hours() / (24 * 7))
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := int(duration.Hours() / (24 * 30))
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}
