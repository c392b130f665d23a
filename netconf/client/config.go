package client

// Defines structs describing netconf configuration.

// Config defines properties that configure netconf session behaviour.
type Config struct {
	// Defines the time in seconds that the client will wait to receive a hello message from the server.
	SetupTimeoutSecs int
	// Prevents the client from advertising the base:1.1 capability, so the session always uses
	// end-of-message framing.
	DisableChunkedCodec bool
}

// DefaultConfig defines the values applied to any unspecified Config properties.
var DefaultConfig = &Config{
	SetupTimeoutSecs: 5,
}
