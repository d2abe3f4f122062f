// Package main hosts the Milltrack CLI entrypoint and command graph.
//
// The Cobra-based command tree surfaces the catalog, registry, tracker,
// waste ledger and disposal services as terminal commands. It centralizes
// configuration resolution, the single-writer data lock and store setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
