// Package render holds the local report emitters: a text dashboard for the
// terminal and a JSON file export.
package render
