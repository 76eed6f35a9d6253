package services

import (
	"verilotto/internal/models"
)

// AccessControl holds the single admin identity. It is fixed at construction.
type AccessControl struct {
	admin models.Address
}

// NewAccessControl creates the gate for admin.
func NewAccessControl(admin models.Address) (*AccessControl, error) {
	canonical, err := models.ParseAddress(admin.String())
	if err != nil {
		return nil, models.WrapError(models.CodeInvalidInput, "invalid admin identity", err)
	}
	return &AccessControl{admin: canonical}, nil
}

// IsAdmin reports whether identity is the admin.
func (a *AccessControl) IsAdmin(identity models.Address) bool {
	return identity != "" && identity == a.admin
}

// Admin returns the admin identity.
func (a *AccessControl) Admin() models.Address {
	return a.admin
}

func (a *AccessControl) authorize(identity models.Address, action string) error {
	if !a.IsAdmin(identity) {
		return models.NewError(models.CodeUnauthorized, action+" requires the admin identity")
	}
	return nil
}
