// Package scheduler drives campaign progress on a fixed tick. Each tick it
// promotes scheduled campaigns whose start time arrived, offers due targets
// of active campaigns to the dispatcher, and completes campaigns that have
// nothing left to do. It keeps the per-target last-sent times that decide
// when a recurring campaign's target is due again.
package scheduler
