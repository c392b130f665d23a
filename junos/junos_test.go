package junos

import "time"

const (
	defaultWait  = 5 * time.Second
	pollInterval = 10 * time.Millisecond
)
