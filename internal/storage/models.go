package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/nlpmodel/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// userRow mirrors the users table. NULL columns map to absent attributes.
type userRow struct {
	ID           int64
	FirstName    sql.NullString
	LastName     sql.NullString
	Email        sql.NullString
	AvatarURL    sql.NullString
	Properties   sql.NullString // JSON object stored as text
	IsAdmin      bool
	SignupTstamp int64
}

func (r *userRow) scanArgs() []any {
	return []any{&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.AvatarURL, &r.Properties, &r.IsAdmin, &r.SignupTstamp}
}

func (r userRow) toUser() (model.User, error) {
	props := model.None[map[string]string]()
	if r.Properties.Valid {
		var m map[string]string
		if err := json.Unmarshal([]byte(r.Properties.String), &m); err != nil {
			return model.User{}, fmt.Errorf("decoding properties for user %d: %w", r.ID, err)
		}
		if m == nil {
			m = map[string]string{}
		}
		props = model.Some(m)
	}
	return model.NewUser(
		r.ID,
		optionalString(r.FirstName),
		optionalString(r.LastName),
		optionalString(r.Email),
		optionalString(r.AvatarURL),
		props,
		r.IsAdmin,
		r.SignupTstamp,
	), nil
}

func rowFromUser(u model.User) (userRow, error) {
	r := userRow{
		ID:           u.ID(),
		FirstName:    nullString(u.FirstName()),
		LastName:     nullString(u.LastName()),
		Email:        nullString(u.Email()),
		AvatarURL:    nullString(u.AvatarURL()),
		IsAdmin:      u.IsAdmin(),
		SignupTstamp: u.SignupTimestamp(),
	}
	if m, ok := u.Properties().Get(); ok {
		if m == nil {
			m = map[string]string{}
		}
		b, err := json.Marshal(m)
		if err != nil {
			return userRow{}, fmt.Errorf("encoding properties for user %d: %w", u.ID(), err)
		}
		r.Properties = sql.NullString{String: string(b), Valid: true}
	}
	return r, nil
}

func optionalString(ns sql.NullString) model.Optional[string] {
	if !ns.Valid {
		return model.None[string]()
	}
	return model.Some(ns.String)
}

func nullString(o model.Optional[string]) sql.NullString {
	v, ok := o.Get()
	return sql.NullString{String: v, Valid: ok}
}
