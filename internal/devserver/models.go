package devserver

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// User is a workshop account that can log in from the mobile client
type User struct {
	BaseModel
	Username     string    `json:"username" gorm:"unique;not null"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Name         string    `json:"name"`
	IsStaff      bool      `json:"is_staff" gorm:"not null;default:false"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Profile is the user object returned by /login/
func (u *User) Profile() map[string]any {
	return map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"name":     u.Name,
		"email":    u.Email,
		"is_staff": u.IsStaff,
	}
}

// RefreshToken is one issued login. Access tokens carry its ID so a logout
// revokes them together.
type RefreshToken struct {
	BaseModel
	UserID    string     `json:"user_id" gorm:"type:varchar(26);not null;index"`
	TokenHash string     `json:"-" gorm:"type:varchar(64);unique;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	RevokedAt *time.Time `json:"revoked_at"`
}

// Active reports whether the token can still authenticate at now
func (r *RefreshToken) Active(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// JobCard is a vehicle job in the workshop
type JobCard struct {
	BaseModel
	Registration string `json:"registration" gorm:"not null"`
	Customer     string `json:"customer"`
	Description  string `json:"description"`
	Status       string `json:"status" gorm:"not null;default:open"` // open, in_progress, done
	AssignedTo   string `json:"assigned_to" gorm:"type:varchar(26)"`
}

// Employee is a workshop mechanic or advisor
type Employee struct {
	BaseModel
	Name string `json:"name" gorm:"not null"`
	Role string `json:"role"`
}

// AttendanceRecord is a clock-in/clock-out pair for an employee
type AttendanceRecord struct {
	BaseModel
	EmployeeID string     `json:"employee_id" gorm:"type:varchar(26);not null;index"`
	ClockIn    time.Time  `json:"clock_in" gorm:"not null"`
	ClockOut   *time.Time `json:"clock_out"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&User{}, &RefreshToken{}, &JobCard{}, &Employee{}, &AttendanceRecord{},
	}

	return db.AutoMigrate(models...)
}
