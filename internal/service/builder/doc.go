// Package builder assembles update packages: it reads the build
// archives, stages the package contents for the chosen install flavor
// and hands the result to signing and finalization.
package builder
