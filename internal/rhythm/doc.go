// Package rhythm holds the keystroke timing vector and the two pure
// operations every other package builds on: reducing two capture timelines
// into one (Merge) and comparing a submitted timeline against a stored
// reference (Compare).
//
// A Vector is a list of elapsed times in seconds, one entry per accepted
// keystroke, measured from the first keystroke of the same capture session.
// Captured values carry millisecond precision. Compare works on the values
// as submitted, so a deviation of 0.6004 s is already outside the 0.60 s
// tolerance.
//
// Nothing in this package is stateful or concurrent. Callers own their
// vectors; functions never modify their inputs.
package rhythm
