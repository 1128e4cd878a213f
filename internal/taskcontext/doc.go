// Package taskcontext is the durable per-task artifact store.
//
// Each task lives in base/agent_{agent}/task_{task}/ and holds five markdown
// artifacts (to-do, history, resources, summary, scratchpad), a
// metadata.json describing them, and an optional run_state.json for runs
// suspended on a confirmation. Every mutation of one task is serialized by a
// per-task lock and replaces the whole file.
package taskcontext
