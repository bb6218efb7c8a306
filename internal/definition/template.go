package definition

// Template returns the starter document written by init.
func Template() Document {
	return NewDocument(Definition{
		Version: SchemaVersionConstant,
		Targets: map[string]Target{
			"dummy-repo": {Repository: "git@github.com:example/dummy-repo.git"},
		},
		Checkout: Checkout{
			BranchName:       "migration/example",
			PreflightCommand: "/usr/bin/true",
		},
		PullRequest: PullRequest{
			Title:       "Example Title",
			Description: "Describe the migration here.\n\nNewlines are preserved in the pull request body.",
		},
		Steps: []Step{
			{Name: "Example", Script: "examples/example-migration.sh"},
		},
	})
}
