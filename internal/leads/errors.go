package leads

import "errors"

var (
	ErrNotFound            = errors.New("leads: not found")
	ErrClaimNotPermitted   = errors.New("only agents can claim buyer requests")
	ErrReleaseNotPermitted = errors.New("not permitted to release this claim")
	ErrAlreadyClaimed      = errors.New("buyer request is already claimed")
	ErrRequestClosed       = errors.New("buyer request is closed")
	ErrClaimNotActive      = errors.New("claim is not active")
)
