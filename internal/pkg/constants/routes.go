package constants

// Static route constants
const (
	APIRoute = "/api"

	// Frontend redirect targets used when creating processor sessions.
	PaymentSuccessPath = "/payment?success=true"
	PaymentCancelPath  = "/payment?canceled=true"
	PortalReturnPath   = "/settings?portal_return=true"
)
