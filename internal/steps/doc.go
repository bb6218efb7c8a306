// Package steps runs the pre-flight check and the ordered migration scripts of one target.
//
// Scripts run through sh -c inside the target's clone with their output appended to
// the workspace logs. A step that exits 0 but leaves uncommitted paths behind fails
// the target just like a step that exits non-zero.
package steps
