// Package engine coordinates the agent's workloads. It splits incoming
// desired state into ready and waiting workloads, dispatches ready ones to
// their execution tasks, and re-runs dependency promotion whenever a
// workload reports a new state.
package engine
