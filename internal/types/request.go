package types

type RequestSend struct {
	Phone      string `json:"phone"`
	Message    string `json:"message"`
	CustomerID string `json:"customerId"`
}

type RequestRecipient struct {
	Phone      string `json:"phone"`
	Name       string `json:"name"`
	CustomerID string `json:"customerId"`
}

type RequestSendBulk struct {
	Recipients   []RequestRecipient `json:"recipients"`
	Template     string             `json:"template"`
	DelayMs      *int               `json:"delayMs"`
	CampaignName string             `json:"campaignName"`
}

type RequestSendMedia struct {
	Phone    string `json:"phone"`
	MediaURL string `json:"mediaUrl"`
	Caption  string `json:"caption"`
}
