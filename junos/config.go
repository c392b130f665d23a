package junos

import (
	"golang.org/x/crypto/ssh"
)

// Config defines properties that configure device client behaviour.
type Config struct {
	// Port is the NETCONF port used when the host does not specify one.
	Port int
	// SetupTimeoutSecs bounds the ssh handshake and the NETCONF hello exchange.
	SetupTimeoutSecs int
	// DisableChunkedCodec restricts the session to end-of-message framing.
	DisableChunkedCodec bool
	// HostKeyCallback verifies the device host key.
	HostKeyCallback ssh.HostKeyCallback
	// DefaultMode is used when a configuration is opened without a mode.
	DefaultMode Mode
	// LenientTemplates renders undefined template variables as empty text instead of failing.
	LenientTemplates bool
}

// DefaultConfig defines the default configuration.
// Values of a caller supplied configuration that are not set are taken from here.
var DefaultConfig = &Config{
	Port:             830,
	SetupTimeoutSecs: 30,
	HostKeyCallback:  ssh.InsecureIgnoreHostKey(), // nolint: gosec
	DefaultMode:      ModeShared,
}
