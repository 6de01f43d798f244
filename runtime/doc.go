// Package runtime contains runtime adapter implementations of the
// core.RuntimeAdapter capability. The concrete provider-backed variants live
// in subpackages (anthropic, openai) and are selected by name through the
// runtime registry; this package provides the in-memory MockAdapter used by
// tests and examples.
package runtime
