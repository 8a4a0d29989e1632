// Package capture turns raw key events into timing vectors.
//
// A Session records the timeline of one password input. A Form owns the
// sessions of one login or registration form and reduces them to the single
// vector that is submitted. A Loop drives a Form from an ordered stream of
// key, retry, mode and submit events, refreshes the elapsed-time readout on
// a fixed cadence, and resets the form after every submission result.
//
// Everything here runs on one goroutine per form. Sessions of the two fields
// of a registration form never share state.
package capture
