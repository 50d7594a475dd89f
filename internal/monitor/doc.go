// Package monitor ties the sensor, the reading pipeline and the storage sink
// together and hands results to a shell without blocking it.
//
// A shell calls request() to ask for a reading. The Dispatcher runs the
// fetch on its own worker goroutine, which is the only goroutine touching the
// sensor, and publishes every outcome as an Event on a bounded ring channel.
package monitor
