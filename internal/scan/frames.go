package scan

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
)

// Stream — открытый поток кадров. Frames закрывается вместе со Stream.
type Stream interface {
	Frames() <-chan image.Image
	Close() error
}

// Camera — источник кадров.
type Camera interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, deviceID string) (Stream, error)
}

// FrameReader собирает Reader из камеры и покадрового декодера.
type FrameReader struct {
	cam Camera
	dec Decoder
	log logrus.FieldLogger
}

func NewFrameReader(cam Camera, dec Decoder, log logrus.FieldLogger) *FrameReader {
	return &FrameReader{cam: cam, dec: dec, log: log}
}

func (r *FrameReader) VideoInputDevices(ctx context.Context) ([]Device, error) {
	return r.cam.Devices(ctx)
}

func (r *FrameReader) DecodeFromDevice(ctx context.Context, deviceID string) (Subscription, error) {
	st, err := r.cam.Open(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	s := &frameSub{
		stream:   st,
		attempts: make(chan Attempt, 1),
		done:     make(chan struct{}),
	}
	go s.pump(r.dec, r.log)
	return s, nil
}

type frameSub struct {
	stream   Stream
	attempts chan Attempt
	done     chan struct{}
	once     sync.Once
}

func (s *frameSub) Attempts() <-chan Attempt { return s.attempts }

func (s *frameSub) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		_ = s.stream.Close()
	})
}

func (s *frameSub) pump(dec Decoder, log logrus.FieldLogger) {
	defer close(s.attempts)
	frames := s.stream.Frames()
	for {
		select {
		case <-s.done:
			return
		case img, ok := <-frames:
			if !ok {
				return
			}
			text, err := dec.Decode(img)
			a := Attempt{Text: text, Found: err == nil}
			if err != nil && !errors.Is(err, ErrNotFound) {
				log.WithError(err).Debug("scan: decode frame")
			}
			select {
			case s.attempts <- a:
			case <-s.done:
				return
			}
		}
	}
}
