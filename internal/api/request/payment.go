package request

// MarkPaidRequest confirms one investor's payment. At least one of TransactionID and UTR
// is required; PaymentDate defaults to now.
type MarkPaidRequest struct {
	TransactionID string `json:"transactionId" validate:"required_without=UTR,max=100"`
	UTR           string `json:"utr" validate:"max=100"`
	PaymentDate   string `json:"paymentDate" validate:"omitempty,datetime=2006-01-02"`
}
