package handler

const (
	errInternalServer     = "Internal server error"
	errInvalidCredentials = "Invalid email or password"
	errEmailTaken         = "An account with this email already exists"
	errWeakPassword       = "Password must be at least 6 characters"
	errInvalidCode        = "Invitation code is invalid or expired"
	errCodeExhausted      = "Invitation code has already been used"
	errCodeRateLimited    = "Too many codes requested, try again later"
	errLoginCodeInvalid   = "Login code is invalid or expired"
	errEmailDelivery      = "Could not send the email, try again later"
	errCeilingExceeded    = "Plan limit reached, upgrade to continue"
	errProductNotFound    = "Product not found"
	errOrderNotFound      = "Order not found"
	errUserNotFound       = "User not found"
)
