// Package lock provides a PID file lock that keeps two guard runs for the
// same zone from racing on the state files.
//
// A lock left behind by a crashed run is detected by looking the recorded PID
// up in the process table and is reclaimed.
package lock
