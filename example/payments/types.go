package payments

// TransferInput moves money between two accounts
type TransferInput struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// TransferOutput is the recorded outcome of a transfer
type TransferOutput struct {
	TransferID  string `json:"transferId" dynamodbav:"transfer_id"`
	FromBalance int64  `json:"fromBalance" dynamodbav:"from_balance"`
	ToBalance   int64  `json:"toBalance" dynamodbav:"to_balance"`
}

// PayoutInput is the initial input for the payout workflow
type PayoutInput struct {
	PayoutID    string `json:"payoutId"`
	Account     string `json:"account"`
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

// Step: validate
type ValidateOutput struct {
	Available int64 `json:"available"`
}

// Steps: charge and settle
type LegOutput struct {
	TransferID string `json:"transferId"`
	Balance    int64  `json:"balance"`
}

// Step: receipt
type ReceiptOutput struct {
	Message string `json:"message"`
}
