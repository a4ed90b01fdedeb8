package screenshot

import (
	"bytes"
	"errors"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"lstqc/internal/models"
	"lstqc/pkg/layout"
	"lstqc/pkg/nifti"
	"lstqc/pkg/visualization"
)

// fakeRenderer renders a tiny synthetic volume instead of reading inputs,
// and can be told to fail or panic for given paths
type fakeRenderer struct {
	loadErr    map[string]error
	overlayErr error
	panicOn    string

	loaded   []string
	titles   []string
	cuts     []int
	overlays []visualization.OverlayOptions
	displays []*visualization.Display
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{loadErr: map[string]error{}}
}

func (f *fakeRenderer) Load(path string) (*models.Volume, error) {
	if path == f.panicOn {
		panic("index out of range")
	}
	f.loaded = append(f.loaded, path)
	if err := f.loadErr[path]; err != nil {
		return nil, err
	}
	vol := models.NewVolume(6, 6, 6)
	for i := range vol.Data {
		vol.Data[i] = float64(i % 7)
	}
	return vol, nil
}

func (f *fakeRenderer) RenderMosaic(vol *models.Volume, cuts int, title string) (*visualization.Display, error) {
	f.titles = append(f.titles, title)
	f.cuts = append(f.cuts, cuts)
	opts := visualization.DefaultMosaicOptions()
	opts.Cuts = cuts
	opts.TileSize = 8
	opts.Title = title
	d, err := visualization.RenderMosaic(vol, opts)
	if err != nil {
		return nil, err
	}
	f.displays = append(f.displays, d)
	return d, nil
}

func (f *fakeRenderer) Overlay(d *visualization.Display, maskPath string, opts visualization.OverlayOptions) error {
	f.overlays = append(f.overlays, opts)
	return f.overlayErr
}

func (f *fakeRenderer) Save(d *visualization.Display, path string) error {
	return d.Save(path)
}

// allClosed reports whether every display handed out has been closed
func (f *fakeRenderer) allClosed() bool {
	for _, d := range f.displays {
		if _, err := d.Image(); !errors.Is(err, visualization.ErrClosed) {
			return false
		}
	}
	return true
}

// testEnv is an input/output directory pair with a captured log
type testEnv struct {
	in, out string
	log     *bytes.Buffer
	logger  *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	var buf bytes.Buffer
	return &testEnv{
		in:     filepath.Join(base, "in"),
		out:    filepath.Join(base, "out"),
		log:    &buf,
		logger: slog.New(slog.NewTextHandler(&buf, nil)),
	}
}

func (e *testEnv) options() Options {
	return Options{
		Naming:    layout.DefaultNaming(),
		InputDir:  e.in,
		OutputDir: e.out,
		Cuts:      20,
		Overlay:   visualization.DefaultOverlayOptions(),
	}
}

func (e *testEnv) paths(s models.Session) layout.Paths {
	return layout.Resolve(layout.DefaultNaming(), e.in, e.out, s.Subject, s.Session)
}

// touch creates placeholder input files for the fake renderer
func (e *testEnv) touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("placeholder"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func statuses(outcomes []models.Outcome) []models.Status {
	var s []models.Status
	for _, o := range outcomes {
		s = append(s, o.Status)
	}
	return s
}

var session01 = models.Session{Subject: "sub-01", Session: "ses-01"}

func TestProcessSessionWritesBothScreenshots(t *testing.T) {
	env := newTestEnv(t)
	p := env.paths(session01)
	env.touch(t, p.FilledInput, p.T1wInput, p.MaskInput)
	renderer := newFakeRenderer()

	outcomes := NewDriver(renderer, env.options(), env.logger).ProcessSession(session01)

	want := []models.Status{models.StatusWritten, models.StatusWritten}
	if diff := cmp.Diff(want, statuses(outcomes)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if !fileExists(p.FilledOutput) || !fileExists(p.OverlayOutput) {
		t.Error("Expected both screenshots on disk")
	}

	wantTitles := []string{"sub-01_ses-01_T1w_filled.nii.gz", "sub-01ses-01T1w + lesion mask"}
	if diff := cmp.Diff(wantTitles, renderer.titles); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{20, 20}, renderer.cuts); diff != "" {
		t.Errorf("cuts mismatch (-want +got):\n%s", diff)
	}
	wantOverlay := []visualization.OverlayOptions{{Colormap: "hot", Threshold: 0, Alpha: 0.8}}
	if diff := cmp.Diff(wantOverlay, renderer.overlays); diff != "" {
		t.Errorf("overlay options mismatch (-want +got):\n%s", diff)
	}
	if !renderer.allClosed() {
		t.Error("Expected every display to be closed")
	}
}

func TestMissingFilledImageDoesNotAffectOverlay(t *testing.T) {
	env := newTestEnv(t)
	p := env.paths(session01)
	env.touch(t, p.T1wInput, p.MaskInput)

	outcomes := NewDriver(newFakeRenderer(), env.options(), env.logger).ProcessSession(session01)

	if outcomes[0].Status != models.StatusMissing || outcomes[0].Path != p.FilledInput {
		t.Errorf("Expected filled screenshot missing for %s, got %+v", p.FilledInput, outcomes[0])
	}
	if outcomes[1].Status != models.StatusWritten {
		t.Errorf("Expected overlay written, got %+v", outcomes[1])
	}
	if fileExists(p.FilledOutput) {
		t.Error("Expected no filled screenshot")
	}
	if !fileExists(p.OverlayOutput) {
		t.Error("Expected overlay screenshot")
	}
	if !strings.Contains(env.log.String(), "missing image") {
		t.Errorf("Expected missing image notice, got:\n%s", env.log.String())
	}
}

func TestMissingMaskSkipsOverlay(t *testing.T) {
	for _, name := range []string{"mask", "t1w"} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.paths(session01)
			present := p.T1wInput
			if name == "t1w" {
				present = p.MaskInput
			}
			env.touch(t, p.FilledInput, present)
			renderer := newFakeRenderer()

			outcomes := NewDriver(renderer, env.options(), env.logger).ProcessSession(session01)

			if outcomes[0].Status != models.StatusWritten {
				t.Errorf("Expected filled screenshot written, got %+v", outcomes[0])
			}
			if outcomes[1].Status != models.StatusMissing {
				t.Errorf("Expected overlay missing, got %+v", outcomes[1])
			}
			if fileExists(p.OverlayOutput) {
				t.Error("Expected no overlay screenshot")
			}
			if len(renderer.overlays) != 0 {
				t.Error("Expected no overlay call")
			}
			if !strings.Contains(env.log.String(), "missing t1w image or lesion mask") {
				t.Errorf("Expected missing t1w/mask notice, got:\n%s", env.log.String())
			}
		})
	}
}

func TestLoadFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	p := env.paths(session01)
	env.touch(t, p.FilledInput, p.T1wInput, p.MaskInput)
	renderer := newFakeRenderer()
	renderer.loadErr[p.FilledInput] = &nifti.DecodeError{Reason: "sizeof_hdr is not 348"}

	outcomes := NewDriver(renderer, env.options(), env.logger).ProcessSession(session01)

	if outcomes[0].Status != models.StatusFailed {
		t.Fatalf("Expected filled screenshot failed, got %+v", outcomes[0])
	}
	var decodeErr *nifti.DecodeError
	if !errors.As(outcomes[0].Err, &decodeErr) {
		t.Errorf("Expected decode error in outcome, got %v", outcomes[0].Err)
	}
	if outcomes[1].Status != models.StatusWritten {
		t.Errorf("Expected overlay to still run, got %+v", outcomes[1])
	}
	if !strings.Contains(env.log.String(), "error reading image") {
		t.Errorf("Expected error notice, got:\n%s", env.log.String())
	}
}

func TestOverlayFailureClosesDisplay(t *testing.T) {
	env := newTestEnv(t)
	p := env.paths(session01)
	env.touch(t, p.FilledInput, p.T1wInput, p.MaskInput)
	renderer := newFakeRenderer()
	renderer.overlayErr = errors.New("mask grid mismatch")

	outcomes := NewDriver(renderer, env.options(), env.logger).ProcessSession(session01)

	if outcomes[1].Status != models.StatusFailed {
		t.Errorf("Expected overlay failed, got %+v", outcomes[1])
	}
	if fileExists(p.OverlayOutput) {
		t.Error("Expected no overlay screenshot after failure")
	}
	if !renderer.allClosed() {
		t.Error("Expected display closed after overlay failure")
	}
	if !strings.Contains(env.log.String(), "error reading t1w image or lesion mask") {
		t.Errorf("Expected overlay error notice, got:\n%s", env.log.String())
	}
}

func TestRendererPanicIsContained(t *testing.T) {
	env := newTestEnv(t)
	p := env.paths(session01)
	env.touch(t, p.FilledInput, p.T1wInput, p.MaskInput)
	renderer := newFakeRenderer()
	renderer.panicOn = p.T1wInput

	outcomes := NewDriver(renderer, env.options(), env.logger).ProcessSession(session01)

	want := []models.Status{models.StatusWritten, models.StatusFailed}
	if diff := cmp.Diff(want, statuses(outcomes)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if outcomes[1].Err == nil || !strings.Contains(outcomes[1].Err.Error(), "index out of range") {
		t.Errorf("Expected panic value in error, got %v", outcomes[1].Err)
	}
}

func TestOutputDirFailureFailsSession(t *testing.T) {
	env := newTestEnv(t)
	p := env.paths(session01)
	env.touch(t, p.FilledInput, p.T1wInput, p.MaskInput)

	// A file where the subject directory should be
	env.touch(t, filepath.Join(env.out, "sub-01"))

	outcomes := NewDriver(newFakeRenderer(), env.options(), env.logger).ProcessSession(session01)

	want := []models.Status{models.StatusFailed, models.StatusFailed}
	if diff := cmp.Diff(want, statuses(outcomes)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan(t *testing.T) {
	roster := []models.Session{
		{Subject: "sub-01", Session: "ses-01"},
		{Subject: "sub-02", Session: "ses-02"},
		{Subject: "sub-01", Session: "ses-01"},
		{Subject: "sub-01", Session: "ses-02"},
	}

	paired := Plan(roster, false)
	wantPaired := []models.Session{
		{Subject: "sub-01", Session: "ses-01"},
		{Subject: "sub-02", Session: "ses-02"},
		{Subject: "sub-01", Session: "ses-02"},
	}
	if diff := cmp.Diff(wantPaired, paired); diff != "" {
		t.Errorf("paired plan mismatch (-want +got):\n%s", diff)
	}

	cross := Plan(roster, true)
	wantCross := []models.Session{
		{Subject: "sub-01", Session: "ses-01"},
		{Subject: "sub-01", Session: "ses-02"},
		{Subject: "sub-02", Session: "ses-01"},
		{Subject: "sub-02", Session: "ses-02"},
	}
	if diff := cmp.Diff(wantCross, cross); diff != "" {
		t.Errorf("cross plan mismatch (-want +got):\n%s", diff)
	}

	if len(Plan(nil, false)) != 0 || len(Plan(nil, true)) != 0 {
		t.Error("Expected empty plans for an empty roster")
	}
}

func TestRunCollectsArtifactsInOrder(t *testing.T) {
	env := newTestEnv(t)
	s2 := models.Session{Subject: "sub-02", Session: "ses-01"}
	p1, p2 := env.paths(session01), env.paths(s2)
	env.touch(t, p1.FilledInput, p1.T1wInput, p1.MaskInput, p2.FilledInput)

	result := NewDriver(newFakeRenderer(), env.options(), env.logger).Run([]models.Session{session01, s2})

	if len(result.Outcomes) != 4 {
		t.Fatalf("Expected 4 outcomes, got %d", len(result.Outcomes))
	}
	want := []models.Artifact{
		{Subject: "sub-01", Session: "ses-01", Kind: models.FilledKind, Path: p1.FilledOutput},
		{Subject: "sub-01", Session: "ses-01", Kind: models.OverlayKind, Path: p1.OverlayOutput},
		{Subject: "sub-02", Session: "ses-01", Kind: models.FilledKind, Path: p2.FilledOutput},
	}
	if diff := cmp.Diff(want, result.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}

	logged := env.log.String()
	if strings.Count(logged, "starting subject") != 2 {
		t.Errorf("Expected one subject notice per subject, got:\n%s", logged)
	}
}

// writeFixtures stores a small anatomical scan, its filled variant and a
// lesion mask under the session input directory
func writeFixtures(t *testing.T, p layout.Paths) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p.T1wInput), 0755); err != nil {
		t.Fatal(err)
	}

	anat := models.NewVolume(24, 28, 20)
	mask := models.NewVolume(24, 28, 20)
	for z := 2; z < 18; z++ {
		for y := 2; y < 26; y++ {
			for x := 2; x < 22; x++ {
				anat.Set(x, y, z, float64(200+x*y%50))
			}
		}
	}
	for z := 9; z < 12; z++ {
		for y := 12; y < 15; y++ {
			for x := 10; x < 13; x++ {
				mask.Set(x, y, z, 1)
				anat.Set(x, y, z, 60)
			}
		}
	}
	filled := models.NewVolume(24, 28, 20)
	copy(filled.Data, anat.Data)
	for _, i := range []int{filled.Index(10, 12, 9), filled.Index(11, 13, 10)} {
		filled.Data[i] = 210
	}

	for path, vol := range map[string]*models.Volume{p.T1wInput: anat, p.FilledInput: filled, p.MaskInput: mask} {
		if err := nifti.Save(path, vol); err != nil {
			t.Fatalf("Failed to write fixture %s: %v", path, err)
		}
	}
}

func TestImageRendererEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	p := env.paths(session01)
	writeFixtures(t, p)

	opts := visualization.DefaultMosaicOptions()
	opts.TileSize = 32
	driver := NewDriver(NewImageRenderer(opts), env.options(), env.logger)

	// A second run over the same output directory overwrites the files
	for run := 1; run <= 2; run++ {
		result := driver.Run([]models.Session{session01})
		if len(result.Artifacts) != 2 {
			t.Fatalf("run %d: expected 2 artifacts, got %+v", run, result.Outcomes)
		}

		for _, path := range []string{p.FilledOutput, p.OverlayOutput} {
			file, err := os.Open(path)
			if err != nil {
				t.Fatalf("run %d: %v", run, err)
			}
			_, err = png.Decode(file)
			file.Close()
			if err != nil {
				t.Errorf("run %d: %s is not a PNG: %v", run, path, err)
			}
		}
	}
}

func TestImageRendererCorruptInput(t *testing.T) {
	env := newTestEnv(t)
	p := env.paths(session01)
	writeFixtures(t, p)
	if err := os.WriteFile(p.MaskInput, []byte("truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	driver := NewDriver(NewImageRenderer(visualization.DefaultMosaicOptions()), env.options(), env.logger)
	outcomes := driver.ProcessSession(session01)

	want := []models.Status{models.StatusWritten, models.StatusFailed}
	if diff := cmp.Diff(want, statuses(outcomes)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	var decodeErr *nifti.DecodeError
	if !errors.As(outcomes[1].Err, &decodeErr) {
		t.Errorf("Expected decode error for corrupt mask, got %v", outcomes[1].Err)
	}
}
