// Package config defines the guard settings and provides helpers to load and
// validate them.
//
// Settings are read from a KEY=VALUE file (the classic cf-under-attack.conf
// format) or, when the file has a .yaml/.yml extension, from a YAML mapping
// using the same key names.
package config
