// Package definition models the migration definition and the status document persisted after a run.
//
// Definitions and status documents share one schema and are read and written
// as YAML or TOML depending on the file extension. Validation happens once at
// load time and reports every problem found through DefinitionError.
package definition
