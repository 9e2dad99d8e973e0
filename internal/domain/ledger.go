package domain

type LedgerReceipt struct {
	Success       bool
	TransactionID string
}

type LedgerStatus struct {
	Revoked bool
}
