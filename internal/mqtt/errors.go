package mqtt

import (
	"context"
	"errors"
	"net"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

var (
	ErrNotConnected = errors.New("mqtt: not connected")
	ErrTimeout      = errors.New("mqtt: operation timed out")
)

// DescribeConnectError turns a connect failure into a short operator-facing
// reason. It returns "" for a nil error.
func DescribeConnectError(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "connection timed out"
	case errors.Is(err, context.Canceled):
		return "connection abandoned"
	case errors.Is(err, packets.ErrorRefusedBadProtocolVersion):
		return "protocol version rejected"
	case errors.Is(err, packets.ErrorRefusedIDRejected):
		return "client identifier rejected"
	case errors.Is(err, packets.ErrorRefusedServerUnavailable):
		return "broker unavailable"
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword):
		return "bad username or password"
	case errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return "not authorised"
	case errors.Is(err, packets.ErrorNetworkError), errors.As(err, &netErr):
		return "network error"
	default:
		return "connection failed"
	}
}

// IsAuthError reports whether the broker refused the credentials.
func IsAuthError(err error) bool {
	return errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised)
}
