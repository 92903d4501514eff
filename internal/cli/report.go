package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/processor"
	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// ScoreStyle colors a score relative to the flagging threshold.
func ScoreStyle(score model.FraudScore, threshold float64) lipgloss.Style {
	switch {
	case float64(score) > threshold:
		return ErrorStyle
	case float64(score) > threshold*0.6:
		return WarningStyle
	default:
		return SuccessStyle
	}
}

// RenderAssessment shows how a transaction's score was built up.
func RenderAssessment(txn model.Transaction, a *model.Assessment) string {
	base := txn.BaseRiskIndicator * 100
	score := ScoreStyle(a.Score, a.Threshold).Render(fmt.Sprintf("%.0f", float64(a.Score)))

	verdict := FormatSuccess("clear")
	if a.Flagged {
		verdict = ErrorStyle.Render(AlertIcon + " flagged as fraud")
	}

	lines := []string{
		row("Transaction", txn.ID),
		row("User", txn.UserID),
		row("Merchant", fmt.Sprintf("%s (base risk %.2f)", txn.Merchant, txn.BaseRiskIndicator)),
		row("Amount", "$"+txn.Amount.StringFixed(2)),
		row("Location", txn.Location),
		"",
		row("Base risk", fmt.Sprintf("%.0f", base)),
		row("Amount risk", fmt.Sprintf("%d", a.Factors.AmountRisk)),
		row("Location risk", fmt.Sprintf("%d", a.Factors.LocationRisk)),
		row("Score", fmt.Sprintf("%s / threshold %.0f", score, a.Threshold)),
	}
	if a.Classifier != model.VerdictNotConfigured {
		lines = append(lines, row("Classifier", string(a.Classifier)))
	}
	lines = append(lines, "", verdict)

	return RenderBox("Fraud assessment", strings.Join(lines, "\n"))
}

// RenderEvaluation renders an accuracy report.
func RenderEvaluation(m *model.EvaluationMetrics, skipped int) string {
	pct := func(v float64) string { return fmt.Sprintf("%.2f%%", v) }

	lines := []string{
		row("Test ID", m.TestID),
		row("Algorithm", m.Algorithm),
		row("Threshold", fmt.Sprintf("%.0f", m.Threshold)),
		row("Transactions", fmt.Sprintf("%d", m.Total())),
		"",
		BoldStyle.Render("Confusion matrix"),
		row("True positives", SuccessStyle.Render(fmt.Sprintf("%d", m.TruePositives))),
		row("False positives", WarningStyle.Render(fmt.Sprintf("%d", m.FalsePositives))),
		row("True negatives", SuccessStyle.Render(fmt.Sprintf("%d", m.TrueNegatives))),
		row("False negatives", ErrorStyle.Render(fmt.Sprintf("%d", m.FalseNegatives))),
		"",
		BoldStyle.Render("Metrics"),
		row("Accuracy", pct(m.Accuracy)),
		row("Precision", pct(m.Precision)),
		row("Recall", pct(m.Recall)),
		row("F1 score", pct(m.F1Score)),
	}
	if skipped > 0 {
		lines = append(lines, "", FormatWarning(fmt.Sprintf("%d transactions skipped", skipped)))
	}

	return RenderBox(ChartIcon+" Evaluation results", strings.Join(lines, "\n"))
}

// RenderHistory renders stored evaluation runs as a table, newest first.
func RenderHistory(runs []model.EvaluationMetrics) string {
	if len(runs) == 0 {
		return FormatInfo("No evaluation runs recorded yet")
	}

	const format = "%-14s %-20s %9s %9s %9s %9s %6s"
	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf(format,
		"TEST ID", "WHEN", "ACCURACY", "PRECISION", "RECALL", "F1", "N")))
	b.WriteString("\n")
	for _, r := range runs {
		fmt.Fprintf(&b, format+"\n",
			r.TestID,
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.2f", r.Accuracy),
			fmt.Sprintf("%.2f", r.Precision),
			fmt.Sprintf("%.2f", r.Recall),
			fmt.Sprintf("%.2f", r.F1Score),
			fmt.Sprintf("%d", r.Total()))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderBatchSummary summarizes a processing run.
func RenderBatchSummary(s processor.Summary) string {
	lines := []string{
		row("Processed", fmt.Sprintf("%d", s.Total)),
		row("Flagged", ErrorStyle.Render(fmt.Sprintf("%d", s.Flagged))),
		row("Clear", SuccessStyle.Render(fmt.Sprintf("%d", s.Clear))),
	}
	if s.Failed > 0 {
		lines = append(lines, row("Not processed", WarningStyle.Render(fmt.Sprintf("%d", s.Failed))))
	}
	if s.AlertsFailed > 0 {
		lines = append(lines, row("Alerts failed", ErrorStyle.Render(fmt.Sprintf("%d", s.AlertsFailed))))
	}
	return RenderBox("Processing summary", strings.Join(lines, "\n"))
}

// NewProgressBar returns a bar for long-running batch commands.
func NewProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
