// Package scan ведёт сканирование QR-кода: камера, покадровое распознавание,
// проверка полезной нагрузки и подтверждение пользователем.
package scan

import (
	"context"
	"errors"
)

// Attempt — результат распознавания одного кадра.
type Attempt struct {
	Text  string
	Found bool
}

type Device struct {
	ID    string
	Label string
}

// Subscription — поток попыток распознавания с открытого устройства.
// Канал закрывается после Unsubscribe. Unsubscribe идемпотентен.
type Subscription interface {
	Attempts() <-chan Attempt
	Unsubscribe()
}

// Reader — внешний распознаватель: перечисляет камеры и распознаёт
// кадры выбранной.
type Reader interface {
	VideoInputDevices(ctx context.Context) ([]Device, error)
	DecodeFromDevice(ctx context.Context, deviceID string) (Subscription, error)
}

var (
	ErrNoDevice   = errors.New("no camera device")
	ErrDeviceBusy = errors.New("camera already in use")
	ErrNotOpen    = errors.New("camera stream is not open")
	ErrNotDecoded = errors.New("nothing decoded to confirm")
	ErrNotFound   = errors.New("no code in frame")
)
