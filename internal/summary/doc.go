// Package summary stores named scalar time series (summary vectors) for a
// simulation case and resamples them onto calendar-aligned axes.
//
// Time is measured in days since the case start date. Every store has one
// master report axis; vectors either share it or carry their own irregular
// axis (imported or derived data). Stored arrays are never handed out:
// readers get copies and writers replace whole vectors.
package summary
