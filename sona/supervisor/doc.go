// Package supervisor launches a local Sona server process and keeps track
// of it until it is stopped.
//
// Start spawns "<binary> serve --port N" and waits for the port handshake,
// a stdout line holding a JSON object with an integer "port" field. WaitReady
// then polls GET /health until the server answers. Stop sends SIGTERM to the
// process group and SIGKILL after the grace period.
//
// States move NotStarted → Starting → Ready → Stopping → Stopped. Failed is
// reached from Starting on a launch, handshake or readiness failure, and from
// Ready when the process exits unexpectedly. A supervisor is single use.
package supervisor
