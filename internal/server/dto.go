package server

import (
	"github.com/go-playground/validator/v10"

	"audioscribe/pkg/domain"
)

var validate = validator.New()

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresIn int64       `json:"expiresIn"`
	User      domain.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=10"`
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin manager editor"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin manager editor"`
	IsActive *bool   `json:"isActive"`
	Password *string `json:"password"`
}

type createLanguageRequest struct {
	Code string `json:"code" validate:"required,min=2,max=16"`
	Name string `json:"name" validate:"required"`
}

type updateLanguageRequest struct {
	Code     *string `json:"code" validate:"omitempty,min=2,max=16"`
	Name     *string `json:"name"`
	IsActive *bool   `json:"isActive"`
}

type createProjectRequest struct {
	Name       string `json:"name" validate:"required"`
	LanguageID string `json:"languageId" validate:"required"`
}

type updateProjectRequest struct {
	Name       *string `json:"name"`
	LanguageID *string `json:"languageId"`
}

type createFolderRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type updateFolderRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type updateSegmentRequest struct {
	Transcription *string `json:"transcription"`
	Translation   *string `json:"translation"`
	IsApproved    *bool   `json:"isApproved"`
}

type reorderRequest struct {
	SegmentIDs []string `json:"segmentIds" validate:"required,min=1,dive,required"`
}
