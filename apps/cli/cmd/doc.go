// Package cmd implements the hitwire CLI commands using Cobra.
//
// Available commands:
//   - probe: Send repeated requests through the resilient client and report latency
//   - ws: Open a WebSocket session, send messages and wait for replies
//   - runs: List and show recordings stored by probe and ws
//   - config: Show the effective configuration or write a starter file
//   - version: Show hitwire version information
package cmd
