// Package protocol implements the bridge command protocol: a request/response
// envelope scheme correlated by (command, request_id) over a frame transport.
//
// Commands (host → bridge):
//   - ping: liveness probe
//   - load-notebook: replace the workspace with the given notebook
//   - get-notebook-state: fetch the active notebook JSON
//   - get-current-cell: fetch the most recently executed code cell
//   - get-error-output: fetch the first error output, if any
//
// Notifications (bridge → host, no reply expected):
//   - ready: bridge activated and accepting commands
//   - notebook-dirty: active notebook has unsaved edits
//   - notebook-save-requested: the document asked to be saved
//
// A reply envelope always echoes the command and request_id of its request, so
// one shared listener can demultiplex arbitrarily many concurrent requests.
package protocol
