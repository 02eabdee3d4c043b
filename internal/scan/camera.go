package scan

import (
	"context"
	"image"
	"sync"

	"manualbase/internal/models"
)

const (
	PushDeviceID = "browser"
	cameraDenied = "Unable to start camera. Please check permissions."
)

// PushCamera — камера с одним устройством, кадры в которую отправляет
// браузер. Одновременно открыт не более одного потока.
type PushCamera struct {
	mu     sync.Mutex
	failed string
	open   *pushStream
}

func NewPushCamera() *PushCamera { return &PushCamera{} }

// Fail помечает камеру недоступной (браузер не получил доступ к устройству).
// Пустая причина снимает отметку.
func (c *PushCamera) Fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = reason
}

func (c *PushCamera) Devices(context.Context) ([]Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed != "" {
		return nil, &models.DeviceError{Message: cameraDenied, Err: deviceFailure(c.failed)}
	}
	return []Device{{ID: PushDeviceID, Label: "Browser camera"}}, nil
}

func (c *PushCamera) Open(_ context.Context, deviceID string) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.failed != "":
		return nil, &models.DeviceError{Message: cameraDenied, Err: deviceFailure(c.failed)}
	case deviceID != PushDeviceID:
		return nil, &models.DeviceError{Message: cameraDenied, Err: ErrNoDevice}
	case c.open != nil:
		return nil, &models.DeviceError{Message: cameraDenied, Err: ErrDeviceBusy}
	}
	s := &pushStream{cam: c, frames: make(chan image.Image, 1)}
	c.open = s
	return s, nil
}

// Push передаёт кадр в открытый поток. Если предыдущий кадр ещё не
// обработан, новый отбрасывается и возвращается false.
func (c *PushCamera) Push(img image.Image) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return false, ErrNotOpen
	}
	select {
	case c.open.frames <- img:
		return true, nil
	default:
		return false, nil
	}
}

// Active — открыт ли сейчас поток.
func (c *PushCamera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open != nil
}

type pushStream struct {
	cam    *PushCamera
	frames chan image.Image
	closed bool
}

func (s *pushStream) Frames() <-chan image.Image { return s.frames }

func (s *pushStream) Close() error {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.frames)
	if s.cam.open == s {
		s.cam.open = nil
	}
	return nil
}

type deviceFailure string

func (d deviceFailure) Error() string { return string(d) }
