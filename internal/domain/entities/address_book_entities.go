package entities

// AddressBookEntry maps a nickname to a wallet address.
type AddressBookEntry struct {
	ID            string `json:"_id,omitempty"`
	Company       string `json:"company,omitempty"`
	Nickname      string `json:"nickname"`
	WalletAddress string `json:"walletAddress"`
	Email         string `json:"email,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}
