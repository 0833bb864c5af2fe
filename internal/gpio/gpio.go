// Package gpio drives the feeding indicator LED with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator is a single on/off output.
type Indicator interface {
	// Set drives the output. Setting the current state again is allowed.
	Set(on bool) error

	// Close turns the output off and releases GPIO resources.
	Close() error
}

// Chip is the GPIO character device holding the indicator line.
const Chip = "gpiochip0"

// NopIndicator is used when no LED pin is configured.
type NopIndicator struct{}

func (NopIndicator) Set(bool) error { return nil }
func (NopIndicator) Close() error   { return nil }
