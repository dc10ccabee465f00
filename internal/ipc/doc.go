// Package ipc exposes daemon control over a Unix domain socket. The speech
// recognition frontend and the CLI connect here to deliver transcripts and
// query daemon status; JSON-RPC keeps the wire format inspectable with
// nothing more than socat.
package ipc
