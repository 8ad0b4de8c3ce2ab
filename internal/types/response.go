package types

type ResponseStatus struct {
	Ready     bool   `json:"ready"`
	NeedsAuth bool   `json:"needsAuth"`
	State     string `json:"state"`
	Message   string `json:"message"`
}

type ResponseQR struct {
	QRCode  *string `json:"qrCode"`
	QRImage string  `json:"qrImage,omitempty"`
	Message string  `json:"message"`
}

type ResponseSessions struct {
	Sessions interface{} `json:"sessions"`
	Ready    []string    `json:"ready"`
}
