package web

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"manualbase/internal/middleware"
	"manualbase/internal/models"
	"manualbase/internal/scan"
)

const (
	maxFrameBytes = 8 << 20
	frameWait     = 3 * time.Second
)

type scanStartRequest struct {
	// CameraError — браузер не получил доступ к камере (NotAllowedError и т.п.).
	CameraError string `json:"camera_error"`
}

type scanResponse struct {
	scan.Snapshot
	Selection *models.Selection `json:"selection,omitempty"`
}

func writeScan(w http.ResponseWriter, status int, s scan.Snapshot) {
	models.WriteJSON(w, status, scanResponse{Snapshot: s})
}

func noScan(w http.ResponseWriter) {
	models.WriteProblem(w, http.StatusConflict, "Conflict", "no active scan", nil)
}

// ScanStart открывает новый процесс сканирования; прежний закрывается.
func (h *Handler) ScanStart(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	ui.Save()

	var in scanStartRequest
	if r.ContentLength != 0 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body", nil)
			return
		}
	}

	sess := h.d.Scans.Open(ui.BrowserID())
	if in.CameraError != "" {
		sess.Camera.Fail(in.CameraError)
	}
	if err := sess.Workflow.Start(r.Context()); err != nil {
		middleware.Log(r).WithError(err).Info("scan start")
	}
	writeScan(w, http.StatusOK, sess.Workflow.Snapshot())
}

// ScanFrame принимает кадр (JPEG/PNG) и ждёт его распознавания.
func (h *Handler) ScanFrame(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	sess, ok := h.d.Scans.Get(ui.BrowserID())
	if !ok {
		noScan(w)
		return
	}
	img, _, err := image.Decode(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "frame is not a JPEG or PNG image", nil)
		return
	}

	before := sess.Workflow.Snapshot()
	accepted, err := sess.Camera.Push(img)
	if errors.Is(err, scan.ErrNotOpen) {
		writeScan(w, http.StatusConflict, before)
		return
	}
	if !accepted {
		// предыдущий кадр ещё в работе
		writeScan(w, http.StatusAccepted, before)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), frameWait)
	defer cancel()
	writeScan(w, http.StatusOK, sess.Workflow.WaitFrame(ctx, before.Frames))
}

func (h *Handler) ScanSnapshot(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	sess, ok := h.d.Scans.Get(ui.BrowserID())
	if !ok {
		writeScan(w, http.StatusOK, scan.Snapshot{State: scan.Idle})
		return
	}
	writeScan(w, http.StatusOK, sess.Workflow.Snapshot())
}

// ScanConfirm переносит распознанный код в выбор руководства и
// освобождает камеру.
func (h *Handler) ScanConfirm(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	bid := ui.BrowserID()
	sess, ok := h.d.Scans.Get(bid)
	if !ok {
		noScan(w)
		return
	}
	res, err := sess.Workflow.Confirm()
	if err != nil {
		writeScan(w, http.StatusConflict, sess.Workflow.Snapshot())
		return
	}
	h.d.Scans.Close(bid)

	sel := res.Selection()
	ui.SetSelection(sel)
	ui.Flash(flashSuccess, "QR code scanned successfully!")
	ui.Save()
	models.WriteJSON(w, http.StatusOK, scanResponse{Snapshot: sess.Workflow.Snapshot(), Selection: &sel})
}

func (h *Handler) ScanRetry(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	sess, ok := h.d.Scans.Get(ui.BrowserID())
	if !ok {
		noScan(w)
		return
	}
	if err := sess.Workflow.Retry(r.Context()); err != nil {
		middleware.Log(r).WithError(err).Info("scan retry")
	}
	writeScan(w, http.StatusOK, sess.Workflow.Snapshot())
}

func (h *Handler) ScanClose(w http.ResponseWriter, r *http.Request) {
	ui := h.ui(w, r)
	h.d.Scans.Close(ui.BrowserID())
	writeScan(w, http.StatusOK, scan.Snapshot{State: scan.Idle})
}
