// Package gateway wraps the external summarization call with timeout,
// bounded retries, and failure isolation. Exhausted retries come back
// as a Failed outcome rather than an error: failure is a first-class
// result the scheduler persists like any other. Only cancellation
// surfaces as an error, since an interrupted run must not be recorded
// as a terminal outcome.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	log15 "github.com/inconshreveable/log15/v3"
	"github.com/jpillora/backoff"

	"DailyPulse/db"
)

// LLM is the single operation the gateway needs from a language model.
type LLM interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type Gateway struct {
	llm      LLM
	log      log15.Logger
	timeout  time.Duration
	attempts int

	retryMin time.Duration
	retryMax time.Duration
}

// Outcome is the result of one summarization run for a window.
type Outcome struct {
	Status      db.SummaryStatus
	Content     string
	Attempts    int
	GeneratedAt time.Time
}

func New(llm LLM, log log15.Logger, timeout time.Duration, attempts int) *Gateway {
	if attempts < 1 {
		attempts = 1
	}
	return &Gateway{
		llm:      llm,
		log:      log,
		timeout:  timeout,
		attempts: attempts,
		retryMin: 2 * time.Second,
		retryMax: 10 * time.Second,
	}
}

// Summarize produces the window's summary from a snapshot of reports.
// absent lists the display names of members who did not report. An
// empty report set is valid input and still yields a summary. Model
// errors are retried and, once exhausted, absorbed into a failed
// outcome. A non-nil error is returned only when ctx is canceled
// before a result, so the caller can leave the window untouched and
// resume it later.
func (g *Gateway) Summarize(ctx context.Context, group db.Group, window db.ReportWindow, reports []db.Report, absent []string) (Outcome, error) {
	prompt := buildPrompt(reports, absent)

	b := &backoff.Backoff{Min: g.retryMin, Max: g.retryMax, Factor: 2}
	var lastErr error

	for attempt := 1; attempt <= g.attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		text, err := g.llm.GenerateText(callCtx, prompt)
		cancel()

		if err == nil {
			g.log.Info("summary generated", "group", group.ID, "date", window.Date, "attempt", attempt)
			return Outcome{
				Status:      db.SummaryCompleted,
				Content:     strings.TrimSpace(text),
				Attempts:    attempt,
				GeneratedAt: time.Now().UTC(),
			}, nil
		}
		if ctx.Err() != nil {
			g.log.Warn("summarization canceled",
				"group", group.ID, "date", window.Date, "attempt", attempt)
			return Outcome{}, ctx.Err()
		}
		lastErr = err
		g.log.Warn("summarization attempt failed",
			"group", group.ID, "date", window.Date, "attempt", attempt, "err", err)

		if attempt < g.attempts {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				g.log.Warn("summarization canceled",
					"group", group.ID, "date", window.Date, "attempt", attempt)
				return Outcome{}, ctx.Err()
			}
		}
	}

	g.log.Error("summarization exhausted retries",
		"group", group.ID, "date", window.Date, "attempts", g.attempts, "err", lastErr)
	return Outcome{
		Status:      db.SummaryFailed,
		Content:     fallbackSummary(reports, absent),
		Attempts:    g.attempts,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func buildPrompt(reports []db.Report, absent []string) string {
	var b strings.Builder
	b.WriteString("Write a brief summary of the team's reported work for the day.\n\n")
	b.WriteString("Reports:\n")
	if len(reports) == 0 {
		b.WriteString("No reports were submitted.\n")
	} else {
		for _, r := range sorted(reports) {
			fmt.Fprintf(&b, "%s: %s\n", displayName(r), r.Content)
		}
	}
	b.WriteString("\nRequirements:\n")
	b.WriteString("- Keep it short and structured\n")
	b.WriteString("- Highlight the main work streams\n")
	b.WriteString("- Attribute work only to people who reported\n")
	b.WriteString("- Keep each person under 70 words\n")
	b.WriteString("- Do not use asterisks or any markdown formatting\n")
	b.WriteString("- Do not include the date\n\n")
	if len(absent) > 0 {
		fmt.Fprintf(&b, "End with: Missing reports from: %s.\n", strings.Join(absent, ", "))
	} else {
		b.WriteString("End with: Everyone reported.\n")
	}
	return b.String()
}

// fallbackSummary is the plain roll-up delivered when the model stays
// unavailable, so a failed window still carries the raw material.
func fallbackSummary(reports []db.Report, absent []string) string {
	var b strings.Builder
	if len(reports) == 0 {
		b.WriteString("No reports were submitted.")
	} else {
		for _, r := range sorted(reports) {
			fmt.Fprintf(&b, "%s: %s\n", displayName(r), r.Content)
		}
	}
	if len(absent) > 0 {
		fmt.Fprintf(&b, "\nMissing reports from: %s.", strings.Join(absent, ", "))
	}
	return strings.TrimSpace(b.String())
}

func displayName(r db.Report) string {
	if r.FullName != "" {
		return r.FullName
	}
	return fmt.Sprintf("ID:%d", r.ChatID)
}

func sorted(reports []db.Report) []db.Report {
	out := make([]db.Report, len(reports))
	copy(out, reports)
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}
