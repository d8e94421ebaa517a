/*
Package log provides structured logging for datahost using zerolog.

Init(cfg) configures the global Logger once at process startup (logging
configuration is one of the two pieces of process-wide state datahost
allows). Every component package
derives a child logger via WithComponent, WithCollection, WithTxID, or
WithBlockID rather than reaching for the global Logger directly, so every
log line carries enough context to trace a single transaction across the
host directory, block cache, block file, B-Tree, and table layers.
*/
package log
