package report

import (
	"strings"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/githubcli"
)

const (
	notRunStateConstant         = "not_run"
	detailWordSeparatorConstant = " "
)

// Row is one target line of the status table.
type Row struct {
	Target          string
	State           string
	ReviewReference string
	ReviewState     githubcli.ReviewState
	Detail          string
	Failed          bool
}

// BuildRows lists every target of the document in name order.
// Targets without a recorded result are reported as not_run and counted as failed.
// Multi-line failure output is folded onto one line so each target keeps a single row.
func BuildRows(document definition.Document, reviewStates map[string]githubcli.ReviewState) []Row {
	targetNames := document.Definition().TargetNames()
	rows := make([]Row, 0, len(targetNames))
	for _, targetName := range targetNames {
		result, found := document.Result(targetName)
		if !found {
			rows = append(rows, Row{Target: targetName, State: notRunStateConstant, Failed: true})
			continue
		}
		row := Row{
			Target:          targetName,
			State:           string(result.Status),
			ReviewReference: result.ReviewReference,
			ReviewState:     reviewStates[targetName],
			Detail:          result.Note,
			Failed:          !result.IsSuccess(),
		}
		if result.Failure != nil {
			row.Detail = result.Failure.Message
		}
		row.Detail = singleLine(row.Detail)
		rows = append(rows, row)
	}
	return rows
}

func singleLine(detail string) string {
	return strings.Join(strings.Fields(detail), detailWordSeparatorConstant)
}
