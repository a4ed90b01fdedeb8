// Package screenshot drives the per-session rendering of quality-control
// screenshots: the lesion-filled T1w mosaic and the T1w mosaic with the
// lesion mask overlaid.
//
// Every (session, screenshot) unit is guarded on its own. Missing inputs and
// render failures are logged and recorded as outcomes, never returned, so one
// bad session cannot stop a batch.
package screenshot

import (
	"fmt"
	"log/slog"

	"lstqc/internal/models"
	"lstqc/pkg/layout"
	"lstqc/pkg/visualization"
)

// Options configures a Driver
type Options struct {
	Naming    layout.Naming
	InputDir  string
	OutputDir string

	// Cuts is the number of slices per axis in both mosaics
	Cuts int

	// Overlay controls how the lesion mask is drawn
	Overlay visualization.OverlayOptions

	// Cross visits every roster session id for every roster subject id
	// instead of only the pairs listed in the roster
	Cross bool
}

// Result collects the outcomes of a run in processing order
type Result struct {
	Outcomes  []models.Outcome
	Artifacts []models.Artifact
}

func (r *Result) add(outcomes ...models.Outcome) {
	for _, o := range outcomes {
		r.Outcomes = append(r.Outcomes, o)
		if o.Status == models.StatusWritten {
			r.Artifacts = append(r.Artifacts, o.Artifact())
		}
	}
}

// Driver renders the screenshots of a list of sessions
type Driver struct {
	renderer Renderer
	opts     Options
	logger   *slog.Logger
}

// NewDriver creates a driver. A nil logger uses slog.Default().
func NewDriver(renderer Renderer, opts Options, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{renderer: renderer, opts: opts, logger: logger}
}

// Plan returns the sessions to visit. Without cross it is the roster pairs
// in order with duplicates removed; with cross it is every distinct session
// id under every distinct subject id, subjects outermost.
func Plan(sessions []models.Session, cross bool) []models.Session {
	if !cross {
		seen := make(map[models.Session]bool, len(sessions))
		plan := make([]models.Session, 0, len(sessions))
		for _, s := range sessions {
			if seen[s] {
				continue
			}
			seen[s] = true
			plan = append(plan, s)
		}
		return plan
	}

	subjects := unique(sessions, func(s models.Session) string { return s.Subject })
	ids := unique(sessions, func(s models.Session) string { return s.Session })
	plan := make([]models.Session, 0, len(subjects)*len(ids))
	for _, subject := range subjects {
		for _, id := range ids {
			plan = append(plan, models.Session{Subject: subject, Session: id})
		}
	}
	return plan
}

func unique(sessions []models.Session, key func(models.Session) string) []string {
	seen := make(map[string]bool)
	var values []string
	for _, s := range sessions {
		k := key(s)
		if !seen[k] {
			seen[k] = true
			values = append(values, k)
		}
	}
	return values
}

// Run processes every planned session and returns all outcomes
func (d *Driver) Run(sessions []models.Session) Result {
	var result Result
	current := ""
	for i, s := range Plan(sessions, d.opts.Cross) {
		if i == 0 || s.Subject != current {
			d.logger.Info("starting subject", "subject", s.Subject)
			current = s.Subject
		}
		result.add(d.ProcessSession(s)...)
	}
	return result
}

// ProcessSession renders both screenshots of one session
func (d *Driver) ProcessSession(s models.Session) []models.Outcome {
	d.logger.Info("starting session", "subject", s.Subject, "session", s.Session)

	paths := layout.Resolve(d.opts.Naming, d.opts.InputDir, d.opts.OutputDir, s.Subject, s.Session)
	d.logger.Info("resolved paths",
		"t1w", paths.T1wInput,
		"t1w_filled", paths.FilledInput,
		"lesion_mask", paths.MaskInput)

	if err := layout.EnsureOutputDir(paths); err != nil {
		d.logger.Error("error creating output directory", "path", paths.OutputDir, "error", err)
		return []models.Outcome{
			{Session: s, Kind: models.FilledKind, Status: models.StatusFailed, Path: paths.OutputDir, Err: err},
			{Session: s, Kind: models.OverlayKind, Status: models.StatusFailed, Path: paths.OutputDir, Err: err},
		}
	}

	return []models.Outcome{
		d.filledScreenshot(s, paths),
		d.overlayScreenshot(s, paths),
	}
}

// filledScreenshot renders the mosaic of the lesion-filled scan
func (d *Driver) filledScreenshot(s models.Session, p layout.Paths) models.Outcome {
	out := models.Outcome{Session: s, Kind: models.FilledKind}

	if !layout.Exists(p.FilledInput) {
		d.logger.Warn("missing image", "path", p.FilledInput)
		out.Status, out.Path = models.StatusMissing, p.FilledInput
		return out
	}

	title := s.Subject + "_" + s.Session + "_T1w_filled.nii.gz"
	err := guard(func() error {
		vol, err := d.renderer.Load(p.FilledInput)
		if err != nil {
			return err
		}
		display, err := d.renderer.RenderMosaic(vol, d.opts.Cuts, title)
		if err != nil {
			return err
		}
		defer display.Close()
		return d.renderer.Save(display, p.FilledOutput)
	})
	if err != nil {
		d.logger.Error("error reading image", "path", p.FilledInput, "error", err)
		out.Status, out.Path, out.Err = models.StatusFailed, p.FilledInput, err
		return out
	}

	d.logger.Info("wrote screenshot", "path", p.FilledOutput)
	out.Status, out.Path = models.StatusWritten, p.FilledOutput
	return out
}

// overlayScreenshot renders the raw scan mosaic with the lesion mask on top
func (d *Driver) overlayScreenshot(s models.Session, p layout.Paths) models.Outcome {
	out := models.Outcome{Session: s, Kind: models.OverlayKind}

	if !layout.Exists(p.T1wInput) || !layout.Exists(p.MaskInput) {
		d.logger.Warn("missing t1w image or lesion mask",
			"subject", s.Subject, "t1w", p.T1wInput, "lesion_mask", p.MaskInput)
		out.Status, out.Path = models.StatusMissing, p.T1wInput
		if layout.Exists(p.T1wInput) {
			out.Path = p.MaskInput
		}
		return out
	}

	title := s.Subject + s.Session + "T1w + lesion mask"
	err := guard(func() error {
		vol, err := d.renderer.Load(p.T1wInput)
		if err != nil {
			return err
		}
		display, err := d.renderer.RenderMosaic(vol, d.opts.Cuts, title)
		if err != nil {
			return err
		}
		defer display.Close()
		if err := d.renderer.Overlay(display, p.MaskInput, d.opts.Overlay); err != nil {
			return err
		}
		return d.renderer.Save(display, p.OverlayOutput)
	})
	if err != nil {
		d.logger.Error("error reading t1w image or lesion mask", "subject", s.Subject, "error", err)
		out.Status, out.Path, out.Err = models.StatusFailed, p.T1wInput, err
		return out
	}

	d.logger.Info("wrote screenshot", "path", p.OverlayOutput)
	out.Status, out.Path = models.StatusWritten, p.OverlayOutput
	return out
}

// guard runs fn and turns a panic raised by the renderer into an error.
// Deferred cleanups inside fn still run while the panic unwinds.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	return fn()
}
