package chainio

// TxState tracks a transaction from construction to its final receipt.
type TxState int

const (
	TxBuilt TxState = iota
	TxGasEstimated
	TxSigned
	TxSubmitted
	TxPending
	TxConfirmed
	TxFailed
	TxTimedOut
)

var txStateNames = map[TxState]string{
	TxBuilt:        "built",
	TxGasEstimated: "gas_estimated",
	TxSigned:       "signed",
	TxSubmitted:    "submitted",
	TxPending:      "pending",
	TxConfirmed:    "confirmed",
	TxFailed:       "failed",
	TxTimedOut:     "timed_out",
}

func (s TxState) String() string {
	if name, ok := txStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Final reports whether no further receipt poll can change the state.
func (s TxState) Final() bool {
	return s == TxConfirmed || s == TxFailed || s == TxTimedOut
}
