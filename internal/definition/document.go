package definition

import (
	"time"

	"github.com/temirov/clu/internal/lifecycle"
)

// RunMetadata identifies the run that last wrote a status document.
type RunMetadata struct {
	ID         string    `yaml:"id" toml:"id"`
	StartedAt  time.Time `yaml:"started-at" toml:"started-at"`
	BackupPath string    `yaml:"backup-path,omitempty" toml:"backup-path,omitempty"`
}

// Document is the persisted form of a definition together with the results recorded for its targets.
type Document struct {
	Version     int                               `yaml:"version" toml:"version"`
	Targets     map[string]Target                 `yaml:"targets" toml:"targets"`
	Checkout    Checkout                          `yaml:"checkout" toml:"checkout"`
	PullRequest PullRequest                       `yaml:"pr" toml:"pr"`
	Steps       []Step                            `yaml:"steps" toml:"steps"`
	Run         *RunMetadata                      `yaml:"run,omitempty" toml:"run,omitempty"`
	Results     map[string]lifecycle.TargetResult `yaml:"results,omitempty" toml:"results,omitempty"`
}

// NewDocument builds a document without results for the definition.
func NewDocument(definition Definition) Document {
	copied := definition.Clone()
	return Document{
		Version:     SchemaVersionConstant,
		Targets:     copied.Targets,
		Checkout:    copied.Checkout,
		PullRequest: copied.PullRequest,
		Steps:       copied.Steps,
	}
}

// Definition extracts the migration definition held by the document.
func (document Document) Definition() Definition {
	return Definition{
		Version:     document.Version,
		Targets:     document.Targets,
		Checkout:    document.Checkout,
		PullRequest: document.PullRequest,
		Steps:       document.Steps,
	}.Clone()
}

// Result returns the recorded result of a target.
func (document Document) Result(targetName string) (lifecycle.TargetResult, bool) {
	result, found := document.Results[targetName]
	if !found {
		return lifecycle.TargetResult{}, false
	}
	return result.Clone(), true
}

// Clone returns a deep copy of the document.
func (document Document) Clone() Document {
	copied := NewDocument(document.Definition())
	copied.Version = document.Version
	if document.Run != nil {
		run := *document.Run
		copied.Run = &run
	}
	if document.Results != nil {
		copied.Results = make(map[string]lifecycle.TargetResult, len(document.Results))
		for name, result := range document.Results {
			copied.Results[name] = result.Clone()
		}
	}
	return copied
}
