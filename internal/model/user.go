package model

import (
	"encoding/json"
	"time"
)

// User is a read-only snapshot of one end-user's profile, as returned by the
// user directory at lookup time. Values are stored exactly as supplied.
type User struct {
	id           int64
	firstName    Optional[string]
	lastName     Optional[string]
	email        Optional[string]
	avatarURL    Optional[string]
	props        Optional[map[string]string]
	isAdmin      bool
	signupTstamp int64
}

// NewUser builds a fully-populated User. No input is validated or normalized;
// the producing directory owns that. The properties map is copied.
func NewUser(
	id int64,
	firstName Optional[string],
	lastName Optional[string],
	email Optional[string],
	avatarURL Optional[string],
	props Optional[map[string]string],
	isAdmin bool,
	signupTstamp int64,
) User {
	return User{
		id:           id,
		firstName:    firstName,
		lastName:     lastName,
		email:        email,
		avatarURL:    avatarURL,
		props:        copyProps(props),
		isAdmin:      isAdmin,
		signupTstamp: signupTstamp,
	}
}

// ID returns the externally assigned user id.
func (u User) ID() int64 { return u.id }

func (u User) FirstName() Optional[string] { return u.firstName }

func (u User) LastName() Optional[string] { return u.lastName }

func (u User) Email() Optional[string] { return u.email }

func (u User) AvatarURL() Optional[string] { return u.avatarURL }

// Properties returns a copy of the additional user properties, so callers
// cannot mutate the snapshot.
func (u User) Properties() Optional[map[string]string] { return copyProps(u.props) }

func (u User) IsAdmin() bool { return u.isAdmin }

// SignupTimestamp returns the signup instant in epoch milliseconds.
func (u User) SignupTimestamp() int64 { return u.signupTstamp }

// SignupTime returns the signup instant as a time.Time in UTC.
func (u User) SignupTime() time.Time {
	return time.UnixMilli(u.signupTstamp).UTC()
}

func copyProps(p Optional[map[string]string]) Optional[map[string]string] {
	m, ok := p.Get()
	if !ok {
		return None[map[string]string]()
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Some(cp)
}

type userJSON struct {
	ID              int64                       `json:"id"`
	FirstName       Optional[string]            `json:"first_name"`
	LastName        Optional[string]            `json:"last_name"`
	Email           Optional[string]            `json:"email"`
	AvatarURL       Optional[string]            `json:"avatar_url"`
	Properties      Optional[map[string]string] `json:"properties"`
	IsAdmin         bool                        `json:"is_admin"`
	SignupTimestamp int64                       `json:"signup_timestamp"`
}

// MarshalJSON encodes absent optional attributes as null.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(userJSON{
		ID:              u.id,
		FirstName:       u.firstName,
		LastName:        u.lastName,
		Email:           u.email,
		AvatarURL:       u.avatarURL,
		Properties:      u.props,
		IsAdmin:         u.isAdmin,
		SignupTimestamp: u.signupTstamp,
	})
}

// UnmarshalJSON decodes a User; missing or null optional attributes are absent.
func (u *User) UnmarshalJSON(data []byte) error {
	var j userJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*u = NewUser(j.ID, j.FirstName, j.LastName, j.Email, j.AvatarURL, j.Properties, j.IsAdmin, j.SignupTimestamp)
	return nil
}
