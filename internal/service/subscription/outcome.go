package subscription

// RegisterOutcome is the result of a successful Register call.
type RegisterOutcome int

const (
	// RegisterSuccess means a new Pending subscription was created.
	RegisterSuccess RegisterOutcome = iota + 1
	// RegisterResendConfirmation means an existing Pending or Failed
	// subscription was issued a fresh token.
	RegisterResendConfirmation
	// RegisterAlreadySubscribed means the email is already Confirmed.
	RegisterAlreadySubscribed
)

func (o RegisterOutcome) String() string {
	switch o {
	case RegisterSuccess:
		return "success"
	case RegisterResendConfirmation:
		return "resend_confirmation"
	case RegisterAlreadySubscribed:
		return "already_subscribed"
	}
	return "unknown"
}

// ConfirmOutcome is the result of a successful Confirm call.
type ConfirmOutcome int

const (
	ConfirmSuccess ConfirmOutcome = iota + 1
	// ConfirmTokenNotFound covers tokens that were never issued and tokens
	// already consumed or invalidated.
	ConfirmTokenNotFound
)

func (o ConfirmOutcome) String() string {
	switch o {
	case ConfirmSuccess:
		return "success"
	case ConfirmTokenNotFound:
		return "token_not_found"
	}
	return "unknown"
}
