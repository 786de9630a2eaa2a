// Package dedupe remembers recently sent message ids so a repeated send of
// the same id within a time window is dropped instead of posted twice.
package dedupe
