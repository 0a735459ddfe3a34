package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/spice-harvest/internal/model"
)

const maxDescriptionWidth = 40

// RenderTable lays rows out in aligned columns under a styled header row.
func RenderTable(headers []string, rows [][]string) string {
	columns := make([]string, len(headers))
	for c, header := range headers {
		cells := make([]string, 0, len(rows)+1)
		cells = append(cells, TableHeaderStyle.Render(header))
		for _, row := range rows {
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			cells = append(cells, TableCellStyle.Render(cell))
		}
		columns[c] = lipgloss.JoinVertical(lipgloss.Left, cells...)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

// RenderCandidates prints extracted candidates in extraction order.
func RenderCandidates(w io.Writer, candidates []model.Candidate) error {
	if len(candidates) == 0 {
		_, err := fmt.Fprintln(w, FormatWarning("No transactions found on the page."))
		return err
	}
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{
			c.Date,
			truncate(c.Description, maxDescriptionWidth),
			c.Amount,
			orDash(c.Balance),
			orDash(c.Category),
			strconv.Itoa(c.Confidence),
		})
	}
	_, err := fmt.Fprintln(w, RenderTable([]string{"Date", "Description", "Amount", "Balance", "Category", "Conf"}, rows))
	return err
}

// RenderPreview prints what an import would do.
func RenderPreview(w io.Writer, preview model.Preview) error {
	var b strings.Builder

	b.WriteString(FormatTitle("Import preview") + "\n")
	b.WriteString(fmt.Sprintf("%d new, %d duplicates, %d unreadable\n\n",
		len(preview.Rows), len(preview.Duplicates), len(preview.Errors)))

	if len(preview.Rows) > 0 {
		rows := make([][]string, 0, len(preview.Rows))
		for _, pc := range preview.Rows {
			rows = append(rows, []string{
				strconv.Itoa(pc.Row),
				pc.Date.Format("2006-01-02"),
				truncate(pc.Candidate.Description, maxDescriptionWidth),
				pc.Amount.StringFixed(2),
			})
		}
		b.WriteString(SuccessStyle.Render("New") + "\n")
		b.WriteString(RenderTable([]string{"Row", "Date", "Description", "Amount"}, rows) + "\n\n")
	}

	if len(preview.Duplicates) > 0 {
		rows := make([][]string, 0, len(preview.Duplicates))
		for _, d := range preview.Duplicates {
			rows = append(rows, []string{
				strconv.Itoa(d.Candidate.Row),
				d.Candidate.Date.Format("2006-01-02"),
				truncate(d.Candidate.Candidate.Description, maxDescriptionWidth),
				d.Candidate.Amount.StringFixed(2),
				fmt.Sprintf("%s %d%%", d.MatchType, d.Confidence),
				truncate(d.Existing.Description, maxDescriptionWidth),
			})
		}
		b.WriteString(WarningStyle.Render("Already stored") + "\n")
		b.WriteString(RenderTable([]string{"Row", "Date", "Description", "Amount", "Match", "Existing"}, rows) + "\n\n")
	}

	for _, e := range preview.Errors {
		b.WriteString(FormatError(fmt.Sprintf("row %d: %s", e.Row, e.Reason)) + "\n")
	}

	_, err := fmt.Fprint(w, b.String())
	return err
}

// RenderRecipes lists stored recipes.
func RenderRecipes(w io.Writer, recipes []model.Recipe) error {
	if len(recipes) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No recipes saved yet. Record one with: harvest record"))
		return err
	}
	rows := make([][]string, 0, len(recipes))
	for _, r := range recipes {
		rows = append(rows, []string{
			r.ID,
			r.Name,
			orDash(r.Institution),
			strconv.Itoa(len(r.Steps)),
			strconv.Itoa(r.SensitiveStepCount()),
		})
	}
	_, err := fmt.Fprintln(w, RenderTable([]string{"ID", "Name", "Institution", "Steps", "Sensitive"}, rows))
	return err
}

// RenderRecipe prints one recipe step by step. Sensitive steps show a placeholder.
func RenderRecipe(w io.Writer, r model.Recipe) error {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("ID:    %s\n", r.ID))
	if r.Institution != "" {
		b.WriteString(fmt.Sprintf("Bank:  %s\n", r.Institution))
	}
	if r.StartURL != "" {
		b.WriteString(fmt.Sprintf("Start: %s\n", r.StartURL))
	}
	b.WriteString("\n")

	for i, step := range r.Steps {
		b.WriteString(fmt.Sprintf("%3d. %s\n", i+1, describeStep(step)))
	}

	_, err := fmt.Fprintln(w, RenderBox(r.Name, strings.TrimRight(b.String(), "\n")))
	return err
}

func describeStep(step model.RecordingStep) string {
	switch step.Type {
	case model.StepNavigate:
		return "navigate to " + step.URL
	case model.StepWait:
		return fmt.Sprintf("wait %dms", step.DelayMs)
	case model.StepClick:
		return "click " + step.DisplayLabel()
	}

	value := fmt.Sprintf("%q", step.Value)
	if step.IsSensitive {
		value = SubtleStyle.Render(LockIcon + " asked at playback")
	}
	return fmt.Sprintf("%s %s = %s", step.Type, step.DisplayLabel(), value)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
