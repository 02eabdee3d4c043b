package models

import "fmt"

// AuthError — отказ в учётных данных или недействительный токен.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// NetworkError — сбой транспорта, не-2xx без структурированного тела
// или ответ неожиданной формы.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: HTTP error! status: %d", e.Op, e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError — локальная проверка, блокирующая действие до сетевого вызова.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DeviceError — камера недоступна или доступ запрещён.
type DeviceError struct {
	Message string
	Err     error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DeviceError) Unwrap() error { return e.Err }
