package domain

const (
	RequesterAddressCtxKey = "ctx-requesterAddress"
	RequesterSessionCtxKey = "ctx-requesterSession"
	RequesterMethodCtxKey  = "ctx-requesterMethod"
)

const (
	SessionKeyPrefix = "session:"
	SignalChannel    = "contextly:events"
)
