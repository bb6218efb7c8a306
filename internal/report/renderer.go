package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/temirov/clu/internal/githubcli"
)

const (
	columnSeparatorConstant          = "  "
	emptyCellConstant                = "-"
	targetHeaderConstant             = "TARGET"
	stateHeaderConstant              = "STATE"
	reviewHeaderConstant             = "REVIEW"
	reviewStateHeaderConstant        = "REVIEW STATE"
	detailHeaderConstant             = "DETAIL"
	noTargetsMessageConstant         = "No targets found."
	resultsHeadingConstant           = "# Migration Results"
	sectionHeadingTemplateConstant   = "## %s"
	sectionItemTemplateConstant      = "- %s"
	checksFailedSectionTitleConstant = "Checks Failed"
	notApprovedSectionTitleConstant  = "Not Approved"
	mergeableSectionTitleConstant    = "Mergeable"
	mergedSectionTitleConstant       = "Merged"
	closedSectionTitleConstant       = "Closed"
	newlineConstant                  = "\n"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headingStyle = lipgloss.NewStyle().Bold(true)
)

var reviewSections = []struct {
	title string
	state githubcli.ReviewState
}{
	{title: checksFailedSectionTitleConstant, state: githubcli.ReviewStateChecksFailed},
	{title: notApprovedSectionTitleConstant, state: githubcli.ReviewStateNeedsApproval},
	{title: mergeableSectionTitleConstant, state: githubcli.ReviewStateMergeable},
	{title: mergedSectionTitleConstant, state: githubcli.ReviewStateMerged},
	{title: closedSectionTitleConstant, state: githubcli.ReviewStateClosed},
}

// Renderer writes reports, styling them when Styled is set.
type Renderer struct {
	Styled bool
}

// NewRenderer styles output only when the writer is a terminal.
func NewRenderer(output io.Writer) Renderer {
	outputFile, isFile := output.(*os.File)
	return Renderer{Styled: isFile && term.IsTerminal(int(outputFile.Fd()))}
}

// RenderTable writes one line per row with aligned columns.
// The review state column appears only when includeReviewState is set.
func (renderer Renderer) RenderTable(output io.Writer, rows []Row, includeReviewState bool) error {
	if len(rows) == 0 {
		_, writeError := io.WriteString(output, noTargetsMessageConstant+newlineConstant)
		return writeError
	}

	headers := []string{targetHeaderConstant, stateHeaderConstant, reviewHeaderConstant}
	if includeReviewState {
		headers = append(headers, reviewStateHeaderConstant)
	}
	headers = append(headers, detailHeaderConstant)

	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		rowCells := []string{row.Target, row.State, orEmpty(row.ReviewReference)}
		if includeReviewState {
			rowCells = append(rowCells, orEmpty(string(row.ReviewState)))
		}
		rowCells = append(rowCells, orEmpty(row.Detail))
		cells = append(cells, rowCells)
	}

	columnWidths := make([]int, len(headers))
	for columnIndex, header := range headers {
		columnWidths[columnIndex] = lipgloss.Width(header)
	}
	for _, rowCells := range cells {
		for columnIndex, cell := range rowCells {
			if cellWidth := lipgloss.Width(cell); cellWidth > columnWidths[columnIndex] {
				columnWidths[columnIndex] = cellWidth
			}
		}
	}

	var builder strings.Builder
	builder.WriteString(renderer.render(headerStyle, joinColumns(headers, columnWidths)))
	builder.WriteString(newlineConstant)
	for rowIndex, rowCells := range cells {
		line := joinColumns(rowCells, columnWidths)
		if rows[rowIndex].Failed {
			line = renderer.render(failureStyle, line)
		} else {
			line = renderer.render(successStyle, line)
		}
		builder.WriteString(line)
		builder.WriteString(newlineConstant)
	}

	_, writeError := io.WriteString(output, builder.String())
	return writeError
}

// RenderReviewSummary writes pull request URLs grouped by review state as Markdown.
// Sections without pull requests are omitted.
func (renderer Renderer) RenderReviewSummary(output io.Writer, rows []Row) error {
	var builder strings.Builder
	builder.WriteString(renderer.render(headingStyle, resultsHeadingConstant))
	builder.WriteString(newlineConstant)
	for _, section := range reviewSections {
		references := []string{}
		for _, row := range rows {
			if row.ReviewState == section.state && len(row.ReviewReference) > 0 {
				references = append(references, row.ReviewReference)
			}
		}
		if len(references) == 0 {
			continue
		}
		builder.WriteString(newlineConstant)
		builder.WriteString(renderer.render(headingStyle, fmt.Sprintf(sectionHeadingTemplateConstant, section.title)))
		builder.WriteString(newlineConstant)
		for _, reference := range references {
			builder.WriteString(fmt.Sprintf(sectionItemTemplateConstant, reference))
			builder.WriteString(newlineConstant)
		}
	}
	_, writeError := io.WriteString(output, builder.String())
	return writeError
}

func (renderer Renderer) render(style lipgloss.Style, text string) string {
	if !renderer.Styled {
		return text
	}
	return style.Render(text)
}

func joinColumns(cells []string, columnWidths []int) string {
	padded := make([]string, len(cells))
	for columnIndex, cell := range cells {
		if columnIndex == len(cells)-1 {
			padded[columnIndex] = cell
			continue
		}
		padded[columnIndex] = cell + strings.Repeat(" ", columnWidths[columnIndex]-lipgloss.Width(cell))
	}
	return strings.Join(padded, columnSeparatorConstant)
}

func orEmpty(value string) string {
	if len(value) == 0 {
		return emptyCellConstant
	}
	return value
}
