// Package model defines the data structures used throughout the application.
package model

// Auth methods recorded on a User.
const (
	AuthLocal  = "local"
	AuthGoogle = "google"
)

// DefaultHeadline is assigned to every account that has not set a headline yet.
const DefaultHeadline = "New user"

// User represents a registered account.
//
// Username is the identity key: it is unique, never changes, and is what the
// session registry, the follow-lists and article authorship all refer to.
//
// Salt and Hash hold the password verification material produced by the
// configured auth.Hasher. They are tagged json:"-" so a User can be written
// straight to a response without leaking them. Accounts created through
// Google sign-in have both empty and can only log in through Google.
type User struct {
	Username  string   `json:"username"`
	Salt      string   `json:"-"`
	Hash      string   `json:"-"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Zipcode   string   `json:"zipcode"`
	DOB       string   `json:"dob"`
	Headline  string   `json:"headline"`
	Avatar    string   `json:"avatar,omitempty"`
	Following []string `json:"following"`
	GoogleID  string   `json:"googleId,omitempty"`
	Auth      string   `json:"auth,omitempty"`
}

// ProfileField names one of the per-user profile fields that can be read and
// written individually. Stores use it as a whitelist when building queries, so
// only the values below are ever turned into column or document keys.
type ProfileField string

const (
	FieldHeadline ProfileField = "headline"
	FieldEmail    ProfileField = "email"
	FieldZipcode  ProfileField = "zipcode"
	FieldPhone    ProfileField = "phone"
	FieldAvatar   ProfileField = "avatar"
	FieldDOB      ProfileField = "dob"
)

// Valid reports whether f is a known profile field.
func (f ProfileField) Valid() bool {
	switch f {
	case FieldHeadline, FieldEmail, FieldZipcode, FieldPhone, FieldAvatar, FieldDOB:
		return true
	}
	return false
}

// Value returns the value of field f on u.
func (u *User) Value(f ProfileField) string {
	switch f {
	case FieldHeadline:
		return u.Headline
	case FieldEmail:
		return u.Email
	case FieldZipcode:
		return u.Zipcode
	case FieldPhone:
		return u.Phone
	case FieldAvatar:
		return u.Avatar
	case FieldDOB:
		return u.DOB
	}
	return ""
}

// IsFollowing reports whether target is in u's follow-list.
func (u *User) IsFollowing(target string) bool {
	for _, f := range u.Following {
		if f == target {
			return true
		}
	}
	return false
}
