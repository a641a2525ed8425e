package app

import "errors"

var (
	// ErrInvalidCredentials is shown to end users on login failure. One
	// message for unknown user and wrong password so accounts cannot be
	// enumerated.
	ErrInvalidCredentials = errors.New("Invalid credentials")

	// ErrAccountDeactivated is returned for valid credentials or tokens
	// that belong to a deactivated account. Clients key off this message
	// to prompt the user to contact an administrator.
	ErrAccountDeactivated = errors.New("Account is deactivated")

	ErrInvalidToken = errors.New("invalid token")

	ErrUsernameAndPasswordRequired = errors.New("username and password required")
	ErrUsernameTaken               = errors.New("username already exists")
	ErrLanguageCodeTaken           = errors.New("language code already exists")
	ErrLanguageInUse               = errors.New("language is referenced by projects")
	ErrProjectNameTaken            = errors.New("project name already exists")

	ErrUserNotFound     = errors.New("user not found")
	ErrLanguageNotFound = errors.New("language not found")
	ErrProjectNotFound  = errors.New("project not found")
	ErrFolderNotFound   = errors.New("folder not found")
	ErrSegmentNotFound  = errors.New("segment not found")
)
