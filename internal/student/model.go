package student

import (
	"time"

	"github.com/uptrace/bun"
)

// Student is the persisted record. Password only ever holds a bcrypt hash
// and is never serialized.
type Student struct {
	bun.BaseModel `bun:"table:students,alias:s"`

	ID           int       `bun:"id,pk,autoincrement" json:"id"`
	Username     string    `bun:"username,unique,notnull" json:"username"`
	Password     string    `bun:"password,notnull" json:"-"`
	ProfilePhoto string    `bun:"profile_photo" json:"profilePhoto,omitempty"`
	Phone        string    `bun:"phone,notnull" json:"phone"`
	Dob          time.Time `bun:"dob,type:date,notnull" json:"dob"`
	StudentClass string    `bun:"student_class,notnull" json:"studentClass"`
	Name         string    `bun:"name,notnull" json:"name"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// RegisterRequest is the request body for registration
type RegisterRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password" validate:"required,min=6"`
	ProfilePhoto string `json:"profilePhoto"`
	Phone        string `json:"phone"`
	Dob          string `json:"dob"`
	StudentClass string `json:"studentClass"`
	Name         string `json:"name" validate:"required,notblank"`
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateRequest carries a partial update. Nil, empty and whitespace-only
// fields are left untouched.
type UpdateRequest struct {
	Username     *string `json:"username" validate:"omitempty,notblank"`
	Password     *string `json:"password" validate:"omitempty,min=6"`
	ProfilePhoto *string `json:"profilePhoto"`
	Phone        *string `json:"phone" validate:"omitempty,phone10"`
	Dob          *string `json:"dob" validate:"omitempty,calendardate"`
	StudentClass *string `json:"studentClass" validate:"omitempty,notblank"`
	Name         *string `json:"name" validate:"omitempty,notblank"`
}

// Change is a single column assignment applied by Repository.Update.
type Change struct {
	Column string
	Value  interface{}
}
