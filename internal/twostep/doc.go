// Package twostep arranges the staged install flow for block-based
// packages: the script branches on a persistent stage marker so one
// package drives three consecutive recovery boots.
package twostep
