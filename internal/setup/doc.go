// Package setup verifies the host can run a build: the required external
// tools on PATH and the build root location.
//
// This package is essentially a collection of checks and constants, and is
// therefore the only package that is allowed to call a global logger.
package setup
