// Package bundle serves ability metadata from manifest files.
//
// Manifests live under one root directory, any depth, as YAML, TOML or
// JSON. Each file describes one bundle: its application uid, the abilities
// and extensions it ships and the permissions it requests.
package bundle
