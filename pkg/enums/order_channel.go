package enums

import "fmt"

// OrderChannel records where a checkout originated.
type OrderChannel string

const (
	OrderChannelStorefront OrderChannel = "storefront"
	OrderChannelManual     OrderChannel = "manual"
)

var validOrderChannels = []OrderChannel{
	OrderChannelStorefront,
	OrderChannelManual,
}

// String implements fmt.Stringer.
func (o OrderChannel) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderChannel.
func (o OrderChannel) IsValid() bool {
	for _, candidate := range validOrderChannels {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderChannel converts raw input into an OrderChannel.
func ParseOrderChannel(value string) (OrderChannel, error) {
	for _, candidate := range validOrderChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order channel %q", value)
}
