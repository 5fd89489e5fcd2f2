package auth

import apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"

var (
	ErrMissingFields        = apperrors.New(apperrors.KindInvalidInput, "invalid or missing fields")
	ErrInvalidEmail         = apperrors.New(apperrors.KindInvalidInput, "invalid email")
	ErrInvalidUsername      = apperrors.New(apperrors.KindInvalidInput, "invalid username")
	ErrEmailTaken           = apperrors.New(apperrors.KindConflict, "email is already used")
	ErrAccountNotFound      = apperrors.New(apperrors.KindInvalidInput, "account does not exist")
	ErrInvalidPassword      = apperrors.New(apperrors.KindInvalidCredential, "invalid password")
	ErrInvalidCode          = apperrors.New(apperrors.KindInvalidCredential, "invalid code")
	ErrInvalidRecoveryCode  = apperrors.New(apperrors.KindInvalidCredential, "invalid recovery code")
	ErrInvalidKey           = apperrors.New(apperrors.KindInvalidInput, "invalid key")
	ErrRestartReset         = apperrors.New(apperrors.KindInvalidInput, "please restart the process")
	ErrVerificationExpired  = apperrors.New(apperrors.KindExpired, "verification code expired")
	ErrProviderWithoutEmail = apperrors.New(apperrors.KindInvalidInput, "provider did not return an email")
)
