// Package utils checks input that arrives from outside the process before
// it reaches the managers.
package utils
