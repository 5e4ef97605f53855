// Package executor turns a recipe's declared executor configuration into a
// callable unit of work. Dispatch covers the built-in kinds (template,
// expression, http, llm-agent, media) and an extension point for externally
// registered custom executors.
//
// Executors never mutate graph state. They consume resolved inputs and
// report a discriminated Result; the execution engine owns state
// transitions, provenance, and node creation.
package executor
