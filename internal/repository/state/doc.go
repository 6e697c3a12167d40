// Package state implements persistence for the guard State and AlertState.
//
// Each value lives in its own single-line text file: the cached mode string,
// or a Unix epoch integer. Missing or malformed files read as "no prior
// state". Writes go through a temporary file and an atomic rename.
package state
