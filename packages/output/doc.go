// Package output renders hitwire results for humans and machines.
//
// The Reporter prints colored console summaries of probe statistics,
// latency distributions and session activity, or the same data as JSON.
package output
