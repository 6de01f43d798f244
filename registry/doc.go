// Package registry implements the three lookup tables behind dependency
// injection: tool bundles, skill definitions and runtime adapter factories.
//
// Registries are populated during boot by the manifest layer and become
// read-only afterwards. Tool name conflicts across bundles are resolved once,
// at registry build time (last registered bundle wins, or the build fails in
// strict mode); the agent factory only performs lookups against the already
// resolved state and never re-runs conflict resolution per agent.
package registry
