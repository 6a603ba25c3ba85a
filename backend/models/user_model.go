package models

import (
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanFree   Plan = "free"
	PlanPro    Plan = "pro"
	PlanAgency Plan = "agency"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanAgency:
		return true
	}
	return false
}

type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"fullName"`
	Company      string     `db:"company" json:"company"`
	Timezone     string     `db:"timezone" json:"timezone"`
	Plan         Plan       `db:"plan" json:"plan"`
	PlanStatus   string     `db:"plan_status" json:"planStatus"`
	PlanRenewsAt *time.Time `db:"plan_renews_at" json:"planRenewsAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

type SignupForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Company  string `json:"company"`
}

type LoginForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfile struct {
	FullName string `json:"fullName"`
	Company  string `json:"company"`
	Timezone string `json:"timezone"`
}

// PlanSnapshot is the denormalized billing state kept on the user row.
type PlanSnapshot struct {
	Plan     Plan
	Status   string
	RenewsAt *time.Time
}
