package scan

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"manualbase/internal/models"
)

type State int

const (
	Idle State = iota
	Scanning
	Decoded
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Decoded:
		return "decoded"
	case Error:
		return "error"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot — состояние процесса на момент чтения.
type Snapshot struct {
	ID        string             `json:"id"`
	State     State              `json:"state"`
	Result    *models.ScanResult `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Streaming bool               `json:"streaming"`
	Frames    uint64             `json:"frames"`
}

// Workflow — одно окно сканирования. Камерой владеет только он; каждое
// открытие потока получает новое поколение, попытки старых поколений
// отбрасываются.
type Workflow struct {
	id     string
	reader Reader
	log    logrus.FieldLogger

	mu      sync.Mutex
	state   State
	sub     Subscription
	gen     uint64
	result  *models.ScanResult
	errMsg  string
	frames  uint64
	changed chan struct{}
}

func NewWorkflow(reader Reader, log logrus.FieldLogger) *Workflow {
	id := uuid.NewString()
	return &Workflow{
		id:      id,
		reader:  reader,
		log:     log.WithField("scan_id", id),
		changed: make(chan struct{}),
	}
}

func (w *Workflow) ID() string { return w.id }

// Start открывает первую камеру и переходит в Scanning. Ошибка камеры
// переводит в Error, минуя Scanning. Вне Idle ничего не делает.
func (w *Workflow) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Idle {
		return nil
	}
	return w.openLocked(ctx)
}

func (w *Workflow) openLocked(ctx context.Context) error {
	devices, err := w.reader.VideoInputDevices(ctx)
	if err == nil && len(devices) == 0 {
		err = &models.DeviceError{Message: cameraDenied, Err: ErrNoDevice}
	}
	var sub Subscription
	if err == nil {
		sub, err = w.reader.DecodeFromDevice(ctx, devices[0].ID)
	}
	if err != nil {
		var de *models.DeviceError
		if !errors.As(err, &de) {
			err = &models.DeviceError{Message: cameraDenied, Err: err}
			de = err.(*models.DeviceError)
		}
		w.log.WithError(err).Warn("scan: camera unavailable")
		w.state, w.errMsg = Error, de.Message
		w.notifyLocked()
		return err
	}

	w.gen++
	w.sub = sub
	w.state, w.result, w.errMsg = Scanning, nil, ""
	w.notifyLocked()
	go w.pump(w.gen, sub)
	w.log.WithField("device", devices[0].ID).Debug("scan: stream opened")
	return nil
}

func (w *Workflow) pump(gen uint64, sub Subscription) {
	for a := range sub.Attempts() {
		w.feed(gen, a)
	}
}

// Feed применяет попытку к текущему потоку. Переход в Decoded возможен
// только из Scanning и только один раз; ошибка разбора даёт Error при
// открытой камере.
func (w *Workflow) Feed(a Attempt) {
	w.mu.Lock()
	gen := w.gen
	w.mu.Unlock()
	w.feed(gen, a)
}

func (w *Workflow) feed(gen uint64, a Attempt) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen || w.sub == nil {
		return
	}
	w.frames++
	defer w.notifyLocked()
	if w.state != Scanning || !a.Found {
		return
	}
	res, err := ParsePayload(a.Text)
	if err != nil {
		w.log.WithError(err).Info("scan: rejected payload")
		w.state, w.errMsg = Error, invalidPayload
		return
	}
	w.state, w.result = Decoded, &res
	w.log.WithFields(logrus.Fields{
		"company": res.CompanyName,
		"product": res.ProductName,
	}).Info("scan: decoded")
}

// Confirm отдаёт распознанный результат и освобождает камеру.
func (w *Workflow) Confirm() (models.ScanResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Decoded || w.result == nil {
		return models.ScanResult{}, ErrNotDecoded
	}
	res := *w.result
	w.releaseLocked()
	w.state, w.result = Idle, nil
	w.notifyLocked()
	return res, nil
}

// Retry сбрасывает результат или ошибку и снова сканирует: поток
// сохраняется, если открыт, иначе открывается заново.
func (w *Workflow) Retry(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case Scanning:
		return nil
	case Idle:
		return w.openLocked(ctx)
	}
	w.result, w.errMsg = nil, ""
	if w.sub == nil {
		w.state = Idle
		return w.openLocked(ctx)
	}
	w.state = Scanning
	w.notifyLocked()
	return nil
}

// Close освобождает камеру из любого состояния. Повторный вызов безопасен.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseLocked()
	w.state, w.result, w.errMsg = Idle, nil, ""
	w.notifyLocked()
}

func (w *Workflow) releaseLocked() {
	if w.sub != nil {
		w.sub.Unsubscribe()
		w.sub = nil
	}
	w.gen++
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:        w.id,
		State:     w.state,
		Error:     w.errMsg,
		Streaming: w.sub != nil,
		Frames:    w.frames,
	}
	if w.result != nil {
		r := *w.result
		s.Result = &r
	}
	return s
}

// WaitFrame ждёт, пока будет обработан кадр с номером больше after,
// либо отмены ctx, и возвращает текущее состояние.
func (w *Workflow) WaitFrame(ctx context.Context, after uint64) Snapshot {
	for {
		w.mu.Lock()
		if w.frames > after || w.sub == nil {
			s := w.snapshotLocked()
			w.mu.Unlock()
			return s
		}
		ch := w.changed
		w.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return w.Snapshot()
		}
	}
}

func (w *Workflow) notifyLocked() {
	close(w.changed)
	w.changed = make(chan struct{})
}
