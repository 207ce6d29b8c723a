package types

// ErrorEnvelope is the body of every non-2xx response except the paywall.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// PaywallEnvelope is returned when an export is denied by quota.
type PaywallEnvelope struct {
	Error   string `json:"error"`
	Paywall bool   `json:"paywall"`
	Quota   any    `json:"quota"`
}
