// Package app wires application dependencies for the CLI.
//
// It loads Config from YAML, the environment and a .env file, builds the
// zap logger, and constructs the stores, key vault, relay client, realtime
// bus and chat sessions exposed through Wire.
package app
