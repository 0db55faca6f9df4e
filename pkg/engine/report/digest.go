package report

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DrSkyle/cloudsentinel/pkg/engine/notifier"
)

// DigestSubject is the subject of every scheduled report.
const DigestSubject = "AWS: Scheduled Report"

const separator = "--------------------------------------------------"

// Outcome is the result of one reporting job. Link holds NoResults when nothing was exported.
type Outcome struct {
	Title  string `json:"title"`
	Query  string `json:"query"`
	Status string `json:"status"`
	Link   string `json:"url,omitempty"`
}

// Render formats outcomes in order under banner.
func Render(banner string, outcomes []Outcome) string {
	var b strings.Builder
	b.WriteString(banner)
	b.WriteString("\n")

	for _, o := range outcomes {
		link := o.Link
		if link == "" {
			link = NoResults
		}
		b.WriteString("\nTitle: " + o.Title + "\n")
		b.WriteString("\nQuery: \n" + o.Query + "\n")
		b.WriteString("\nExecution Status: " + o.Status + "\n")
		b.WriteString("\nReport URL: " + link + "\n")
		b.WriteString("\n")
		b.WriteString(separator + "\n")
	}
	return b.String()
}

// Dispatch publishes the digest. Delivery failures are logged to logger and swallowed.
func Dispatch(ctx context.Context, logger *slog.Logger, pub notifier.Publisher, topic, text string) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := pub.Publish(ctx, topic, DigestSubject, text); err != nil {
		logger.Error("Failed to publish report", "topic", topic, "error", err)
		return
	}
	logger.Info("Report published", "topic", topic, "bytes", len(text))
}
