// Package ledger defines the gateway's view of the external eCash ledger
// and SLP token collaborators, plus the payment retry engine and a circuit
// breaker wrapper. The real payment-network protocol lives behind the
// LedgerClient interface; this package only decides how hard to try.
package ledger
