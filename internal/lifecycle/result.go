package lifecycle

import "time"

// FailureKind distinguishes the terminal failure shapes of a target.
type FailureKind string

// Failure kinds.
const (
	FailureKindWorkspace          FailureKind = "workspace"
	FailureKindStep               FailureKind = "step"
	FailureKindUncommittedChanges FailureKind = "uncommitted_changes"
	FailureKindPublish            FailureKind = "publish"
)

// PublishStage names a publish operation.
type PublishStage string

// Publish stages.
const (
	PublishStagePush         PublishStage = "push"
	PublishStageCreateReview PublishStage = "create_review"
)

// FailureDetail describes why a target ended in a failure state.
type FailureDetail struct {
	Kind      FailureKind  `yaml:"kind" toml:"kind"`
	Message   string       `yaml:"message" toml:"message"`
	StepIndex *int         `yaml:"step-index,omitempty" toml:"step-index,omitempty"`
	StepName  string       `yaml:"step-name,omitempty" toml:"step-name,omitempty"`
	ExitCode  *int         `yaml:"exit-code,omitempty" toml:"exit-code,omitempty"`
	Stage     PublishStage `yaml:"stage,omitempty" toml:"stage,omitempty"`
	Paths     []string     `yaml:"paths,omitempty" toml:"paths,omitempty"`
}

// TargetResult is the recorded outcome of one target for one run.
// SkippedStage names the first publish operation a publish_skipped result held back.
type TargetResult struct {
	Status          State          `yaml:"status" toml:"status"`
	ReviewReference string         `yaml:"review-reference,omitempty" toml:"review-reference,omitempty"`
	Note            string         `yaml:"note,omitempty" toml:"note,omitempty"`
	SkippedStage    PublishStage   `yaml:"skipped-stage,omitempty" toml:"skipped-stage,omitempty"`
	Failure         *FailureDetail `yaml:"failure,omitempty" toml:"failure,omitempty"`
	StartedAt       time.Time      `yaml:"started-at" toml:"started-at"`
	FinishedAt      time.Time      `yaml:"finished-at" toml:"finished-at"`
}

// IsSuccess reports whether the result ended published or skipped.
func (result TargetResult) IsSuccess() bool {
	return result.Status.IsSuccess()
}

// BranchPushed reports whether the result left the migration branch on the remote without a review request.
func (result TargetResult) BranchPushed() bool {
	switch result.Status {
	case StatePublishFailed:
		return result.Failure != nil && result.Failure.Stage == PublishStageCreateReview
	case StatePublishSkipped:
		return result.SkippedStage == PublishStageCreateReview
	default:
		return false
	}
}

// Clone returns a deep copy of the result.
func (result TargetResult) Clone() TargetResult {
	copied := result
	if result.Failure != nil {
		failure := *result.Failure
		failure.StepIndex = copyInt(result.Failure.StepIndex)
		failure.ExitCode = copyInt(result.Failure.ExitCode)
		failure.Paths = append([]string(nil), result.Failure.Paths...)
		copied.Failure = &failure
	}
	return copied
}

func copyInt(value *int) *int {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func intPointer(value int) *int {
	return &value
}
