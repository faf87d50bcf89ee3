package models

import "time"

// Organization is the billing/ownership unit of one signed-up identity.
type Organization struct {
	ID         string    `json:"id" db:"id"`
	IdentityID string    `json:"identity_id" db:"identity_id"`
	Name       string    `json:"organization_name" db:"name"`
	Plan       Tier      `json:"plan_type" db:"plan"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DefaultOrganizationName 根据身份的名字生成默认组织名
func DefaultOrganizationName(firstName string) string {
	if firstName == "" {
		return "My Organization"
	}
	return firstName + "'s Organization"
}
