// Package internal holds token and identifier derivation shared by the
// engine and its tests. Nothing here is part of the public API: the engine
// re-exposes what callers need through its own methods.
package internal
