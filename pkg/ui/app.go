// Package ui is the desktop control window: stream and detection toggles
// plus one video window per visible stream.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/teslashibe/go-rsdnn/pkg/frame"
	"github.com/teslashibe/go-rsdnn/pkg/perception"
	"github.com/teslashibe/go-rsdnn/pkg/render"
)

// Controls is the part of the perception controller the window drives.
type Controls interface {
	ShowSurface(kind frame.Kind, s perception.Surface) error
	HideSurface(kind frame.Kind) error
	SetDetection(on bool) error
	Status() perception.Status
}

// App is the control window.
type App struct {
	fyneApp fyne.App
	mainWin fyne.Window

	ctrl   Controls
	cfg    Config
	labels Labels
	logger *slog.Logger

	checks      map[frame.Kind]*widget.Check
	detectCheck *widget.Check
	statusLabel *widget.Label

	mu      sync.Mutex
	windows map[frame.Kind]fyne.Window
}

// New builds the control window on a.
func New(a fyne.App, ctrl Controls, cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	labels := cfg.Labels.withDefaults()

	w := a.NewWindow(labels.ControlSetting)
	w.Resize(fyne.NewSize(cfg.Width, cfg.Height))

	ui := &App{
		fyneApp: a,
		mainWin: w,
		ctrl:    ctrl,
		cfg:     cfg,
		labels:  labels,
		logger:  logger.With("component", "ui"),
		checks:  make(map[frame.Kind]*widget.Check, len(frame.Kinds)),
		windows: make(map[frame.Kind]fyne.Window),
	}
	ui.build()
	return ui
}

func (a *App) build() {
	for _, kind := range frame.Kinds {
		var check *widget.Check
		check = widget.NewCheck(a.streamTitle(kind), func(on bool) {
			a.toggleStream(kind, check, on)
		})
		a.checks[kind] = check
	}

	var detect *widget.Check
	detect = widget.NewCheck(a.labels.StartDetect, func(on bool) {
		a.toggleDetection(detect, on)
	})
	a.detectCheck = detect

	a.statusLabel = widget.NewLabel("")

	sidebar := container.NewVBox(
		widget.NewLabelWithStyle(a.labels.VideoStream, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.checks[frame.KindColor],
		a.checks[frame.KindDepth],
		widget.NewSeparator(),
		widget.NewLabelWithStyle(a.labels.DnnObjDetect, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.detectCheck,
		widget.NewSeparator(),
		a.statusLabel,
	)
	a.mainWin.SetContent(container.NewPadded(sidebar))

	a.mainWin.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape {
			a.mainWin.Close()
		}
	})
	a.mainWin.SetOnClosed(a.closeVideoWindows)
}

func (a *App) streamTitle(kind frame.Kind) string {
	if kind == frame.KindDepth {
		return a.labels.DepthStream
	}
	return a.labels.ColorStream
}

// toggleStream opens or closes the video window for kind. A failed start
// shows the error and unchecks the toggle.
func (a *App) toggleStream(kind frame.Kind, check *widget.Check, on bool) {
	if !on {
		a.hideStream(kind)
		return
	}

	a.mu.Lock()
	_, open := a.windows[kind]
	a.mu.Unlock()
	if open {
		return
	}

	tex := render.NewFyneTexture(a.videoSize(kind))
	renderer := render.New(tex)

	if err := a.ctrl.ShowSurface(kind, renderer); err != nil {
		a.logger.Warn("stream start failed", "kind", kind, "error", err)
		dialog.ShowError(err, a.mainWin)
		uncheck(check)
		return
	}

	win := a.fyneApp.NewWindow(a.streamTitle(kind))
	win.SetContent(tex.Object())
	win.Resize(a.videoSize(kind))
	win.SetCloseIntercept(func() {
		check.SetChecked(false)
	})

	a.mu.Lock()
	a.windows[kind] = win
	a.mu.Unlock()

	win.Show()
}

func (a *App) hideStream(kind frame.Kind) {
	a.mu.Lock()
	win := a.windows[kind]
	delete(a.windows, kind)
	a.mu.Unlock()
	if win == nil {
		return
	}

	if err := a.ctrl.HideSurface(kind); err != nil {
		a.logger.Warn("stream stop failed", "kind", kind, "error", err)
		dialog.ShowError(err, a.mainWin)
	}
	win.Close()
}

func (a *App) toggleDetection(check *widget.Check, on bool) {
	if err := a.ctrl.SetDetection(on); err != nil {
		a.logger.Warn("detection toggle refused", "error", err)
		if errors.Is(err, perception.ErrNotStarted) {
			dialog.ShowInformation("Warning", "Please start playing color or depth stream before DNN detector.", a.mainWin)
		} else {
			dialog.ShowError(err, a.mainWin)
		}
		if on {
			uncheck(check)
		}
	}
}

// uncheck clears a check box without firing its change handler.
func uncheck(check *widget.Check) {
	check.Checked = false
	check.Refresh()
}

// videoSize is the full window for color and a DepthRatio share for depth,
// shaped like the negotiated frame.
func (a *App) videoSize(kind frame.Kind) fyne.Size {
	w, h := a.cfg.Width, a.cfg.Height
	if kind != frame.KindDepth {
		return fyne.NewSize(w, h)
	}

	ratio := float32(16) / 9
	if roi := a.ctrl.Status().ROI; roi != nil && roi.Frame.Y > 0 {
		ratio = float32(roi.Frame.X) / float32(roi.Frame.Y)
	}
	if ratio > w/h {
		dw := w * a.cfg.DepthRatio
		return fyne.NewSize(dw, dw/ratio)
	}
	dh := h * a.cfg.DepthRatio
	return fyne.NewSize(dh*ratio, dh)
}

func (a *App) closeVideoWindows() {
	for _, kind := range frame.Kinds {
		a.hideStream(kind)
	}
}

// IsStreamVisible reports whether the video window for kind is open.
func (a *App) IsStreamVisible(kind frame.Kind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.windows[kind]
	return ok
}

func (a *App) refreshStatus() {
	st := a.ctrl.Status()
	text := fmt.Sprintf("Ticks: %d  Errors: %d  Detections: %d", st.Ticks, st.Errors, len(st.Detections))
	if st.LastError != "" {
		text += "\n" + st.LastError
	}
	a.statusLabel.SetText(text)
}

func (a *App) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fyne.Do(a.refreshStatus)
		}
	}
}

// Run shows the window and blocks until it closes or ctx is done.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.statusLoop(ctx)
	go func() {
		<-ctx.Done()
		fyne.Do(a.fyneApp.Quit)
	}()

	a.mainWin.SetMaster()
	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}
