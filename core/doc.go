// Package core defines the shared contract types of the agentforge
// orchestration engine: validated declarations handed over by the manifest
// layer (agents, tool bundles, skills, workflows), the runtime adapter
// capability interface, the agent status enumeration and the error taxonomy.
//
// Everything in this package is either immutable after construction
// (declarations) or a plain value type; no component state lives here. The
// concrete components (registries, factory, lifecycle manager, workflow
// engine) consume these types and never redefine them.
package core
