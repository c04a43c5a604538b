package artifacts

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count as a human-readable size, e.g. "1.5 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}
	return trimZeros(fmt.Sprintf("%.2f", size)) + " " + sizeUnits[unit]
}

func trimZeros(s string) string {
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// FormatDate renders a creation timestamp relative to now for recent
// artifacts, falling back to an absolute date beyond a week.
func FormatDate(t *time.Time, now time.Time) string {
	if t == nil {
		return "Unknown"
	}
	diff := now.Sub(*t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// Category infers a coarse grouping from the artifact name.
func Category(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "plan"):
		return "Plan"
	case strings.Contains(lower, "diff"), strings.Contains(lower, "git"):
		return "Diff"
	case strings.Contains(lower, "log"):
		return "Log"
	case strings.Contains(lower, "metadata"):
		return "Metadata"
	case strings.Contains(lower, "approval"):
		return "Approval"
	case strings.Contains(lower, "fingerprint"):
		return "Fingerprint"
	case strings.Contains(lower, "spec"):
		return "Specification"
	default:
		return "Other"
	}
}

// DisplayName turns a snake_case artifact name into a title, e.g.
// "git_diff" becomes "Git Diff".
func DisplayName(name string) string {
	words := strings.Split(name, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

var planVersionRe = regexp.MustCompile(`v(\d+)`)

var knownDescriptions = map[string]string{
	"input_spec":            "Input specification for the job",
	"workspace_fingerprint": "Workspace fingerprint information",
	"approval":              "Plan approval record",
	"git_diff":              "Git diff of changes",
	"validation_logs":       "Validation and test logs",
	"pr_metadata":           "Pull request metadata",
}

// Description returns a short human-readable description of a well-known
// artifact name, or a generic fallback.
func Description(name string) string {
	if desc, ok := knownDescriptions[name]; ok {
		return desc
	}
	switch {
	case strings.Contains(name, "plan"):
		if m := planVersionRe.FindStringSubmatch(name); m != nil {
			return "Plan version " + m[1]
		}
		return "Plan specification"
	case strings.Contains(name, "diff"), strings.Contains(name, "git"):
		return "Git diff of changes"
	case strings.Contains(name, "log"):
		return "Validation and test logs"
	case strings.Contains(name, "metadata"):
		return "Metadata information"
	default:
		return "Artifact data"
	}
}
