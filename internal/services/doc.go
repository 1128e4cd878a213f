// Package services assembles the taskd components from configuration.
//
// New wires the store, the text generator, the tool registry, the
// planner, executor and solver, the orchestrator and its dispatcher, artifact
// compression and the event broker. Both cmd/taskd and cmd/taskctl build
// on it.
package services
