// Package server wires the ability manager to its collaborators and
// serves the admin API.
package server
