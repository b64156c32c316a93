package portal

import "time"

// User is an account in the internal user database, used by workflows
// whose repository kind is internal.
type User struct {
	ID              string     `db:"id"`
	Login           string     `db:"login"`
	PasswordHash    string     `db:"password_hash"`
	Email           *string    `db:"email"`
	Phone           *string    `db:"phone"`
	Locked          bool       `db:"locked"`
	PasswordExpires *time.Time `db:"password_expires"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// PasswordIsExpired reports whether the account password lapsed before now.
func (u *User) PasswordIsExpired(now time.Time) bool {
	return u.PasswordExpires != nil && u.PasswordExpires.Before(now)
}
