package models

import (
	"encoding/json"
	"errors"
	"strings"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// User — запись пользователя, как её отдаёт auth API.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"created_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Validate проверяет форму записи: id, email и известная роль.
func (u User) Validate() error {
	switch {
	case strings.TrimSpace(u.ID) == "":
		return errors.New("user: missing id")
	case strings.TrimSpace(u.Email) == "":
		return errors.New("user: missing email")
	case !u.Role.Valid():
		return errors.New("user: unknown role " + string(u.Role))
	}
	return nil
}

// DecodeUser только разбирает JSON записи, без проверки полей. Ошибка
// разбора или null означают «пользователя нет».
func DecodeUser(raw []byte) (User, bool) {
	if len(raw) == 0 {
		return User{}, false
	}
	var u *User
	if err := json.Unmarshal(raw, &u); err != nil || u == nil {
		return User{}, false
	}
	return *u, true
}

// ParseUser разбирает сохранённую запись пользователя. Любая ошибка
// разбора или формы означает «пользователя нет».
func ParseUser(raw []byte) (User, bool) {
	if len(raw) == 0 {
		return User{}, false
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, false
	}
	if err := u.Validate(); err != nil {
		return User{}, false
	}
	return u, true
}
