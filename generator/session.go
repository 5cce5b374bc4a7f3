// Package generator drives one client's generation workflow: input selection, validation,
// the provider call, and saving the result to the gallery.
package generator

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imagestudio/imageio"
	"imagestudio/providers"
	"imagestudio/types"
)

// Phase is the generation lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseGenerating Phase = "generating"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// InputMode says which input feeds the next generation.
type InputMode string

const (
	InputNone   InputMode = "none"
	InputText   InputMode = "text"
	InputUpload InputMode = "upload"
)

// Notice messages shown on validation failure.
const (
	MissingSelectionMessage = "Missing selection: Please select a style and provide an image or text"
	APIKeyRequiredMessage   = "API Key Required: Please add an API key in settings"
)

// ISO-8601 with milliseconds, always UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ImageGenerator produces an image for a style, an input and the caller's settings.
type ImageGenerator interface {
	Generate(ctx context.Context, styleID, input string, s types.Settings) (*providers.Result, error)
}

// SettingsSource yields the current settings.
type SettingsSource interface {
	Get() types.Settings
}

// GalleryWriter persists saved images.
type GalleryWriter interface {
	Append(ctx context.Context, img types.GeneratedImage) error
}

// ErrorView is the presentation of a failure.
type ErrorView struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Phase         Phase             `json:"phase"`
	StyleID       string            `json:"styleId"`
	InputMode     InputMode         `json:"inputMode"`
	InputText     string            `json:"inputText"`
	UploadedImage string            `json:"uploadedImage,omitempty"`
	Result        *providers.Result `json:"result,omitempty"`
	Error         *ErrorView        `json:"error,omitempty"`
	Saved         bool              `json:"saved"`
}

// request is the input a generation was started with.
type request struct {
	styleID  string
	mode     InputMode
	uploaded string
}

// Options tunes a Session.
type Options struct {
	// MaxUploadBytes caps uploads; zero disables the cap.
	MaxUploadBytes int64
	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() (string, error)
}

// Session is the per-client generation state machine. All methods are safe for concurrent use;
// at most one generation is in flight at a time.
type Session struct {
	gen      ImageGenerator
	settings SettingsSource
	gallery  GalleryWriter
	logger   *zap.Logger
	opts     Options

	mu        sync.Mutex
	phase     Phase
	styleID   string
	mode      InputMode
	text      string
	uploaded  string
	result    *providers.Result
	lastErr   *ErrorView
	saved     bool
	generated request
	token     uint64
	cancel    context.CancelFunc
}

// NewSession creates an idle session.
func NewSession(gen ImageGenerator, settings SettingsSource, gallery GalleryWriter, logger *zap.Logger, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}
	}
	return &Session{
		gen:      gen,
		settings: settings,
		gallery:  gallery,
		logger:   logger.With(zap.String("component", "generator")),
		opts:     opts,
		phase:    PhaseIdle,
		mode:     InputNone,
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SelectStyle sets (or with "" clears) the selected style.
func (s *Session) SelectStyle(styleID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.styleID = strings.TrimSpace(styleID)
	s.settleLocked()
	return s.snapshotLocked()
}

// SetText makes text the active input. Empty text deactivates the text input.
func (s *Session) SetText(text string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		s.text = ""
		if s.mode == InputText {
			s.mode = InputNone
		}
	} else {
		s.text = text
		s.uploaded = ""
		s.mode = InputText
	}
	s.settleLocked()
	return s.snapshotLocked()
}

// Upload reads an image and makes it the active input. A non-image MIME type is rejected
// and leaves the state untouched.
func (s *Session) Upload(mimeType string, r io.Reader) (Snapshot, error) {
	dataURL, err := imageio.ReadUpload(mimeType, r, s.opts.MaxUploadBytes)
	if err != nil {
		return s.Snapshot(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded = dataURL
	s.text = ""
	s.mode = InputUpload
	s.settleLocked()
	return s.snapshotLocked(), nil
}

// ClearUpload removes the uploaded image.
func (s *Session) ClearUpload() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded = ""
	if s.mode == InputUpload {
		s.mode = InputNone
	}
	s.settleLocked()
	return s.snapshotLocked()
}

// Generate validates the current input and settings and, if valid, runs the provider call.
// It fails with GENERATION_IN_PROGRESS while another generation is running.
func (s *Session) Generate(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.phase == PhaseGenerating {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, types.NewError(types.ErrGenerationInProgress, "a generation is already in progress")
	}

	s.phase = PhaseValidating
	settings := s.settings.Get()
	input := s.activeInputLocked()
	if s.styleID == "" || input == "" {
		return s.failValidationLocked(types.MissingInput(MissingSelectionMessage))
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return s.failValidationLocked(types.NewError(types.ErrMissingCredential, APIKeyRequiredMessage).
			WithProvider(string(settings.Provider)))
	}

	s.phase = PhaseGenerating
	s.result = nil
	s.lastErr = nil
	s.saved = false
	s.token++
	token := s.token
	genCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	req := request{styleID: s.styleID, mode: s.mode}
	if s.mode == InputUpload {
		req.uploaded = s.uploaded
	}
	s.mu.Unlock()

	s.logger.Debug("generation started",
		zap.String("style", req.styleID),
		zap.String("input_mode", string(req.mode)),
		zap.String("provider", string(settings.Provider)))
	res, err := s.gen.Generate(genCtx, req.styleID, input, settings)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		// Reset while in flight; the outcome belongs to nobody.
		s.logger.Debug("discarding result of a reset generation")
		return s.snapshotLocked(), types.NewError(types.ErrInvalidState, "generation was reset")
	}
	s.cancel = nil
	if err != nil {
		s.phase = PhaseFailed
		s.lastErr = viewOf(err)
		return s.snapshotLocked(), err
	}
	s.phase = PhaseSucceeded
	s.result = res
	s.generated = req
	return s.snapshotLocked(), nil
}

// Reset cancels any in-flight generation, clears the upload and the result, and returns to idle.
// The style and text input are kept.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.token++
	s.uploaded = ""
	if s.mode == InputUpload {
		s.mode = InputNone
	}
	s.phase = PhaseIdle
	s.result = nil
	s.lastErr = nil
	s.saved = false
	return s.snapshotLocked()
}

// Action is the single primary button: generate when a style and an input are set and
// there is no result yet, otherwise reset. It does nothing while generating.
func (s *Session) Action(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	phase := s.phase
	ready := s.styleID != "" && (s.uploaded != "" || s.text != "") && s.result == nil
	s.mu.Unlock()

	switch {
	case phase == PhaseGenerating:
		return s.Snapshot(), nil
	case ready:
		return s.Generate(ctx)
	default:
		return s.Reset(), nil
	}
}

// Save appends the current result to the gallery. It requires a successful, unsaved generation.
func (s *Session) Save(ctx context.Context) (types.GeneratedImage, error) {
	s.mu.Lock()
	if s.phase != PhaseSucceeded || s.result == nil {
		s.mu.Unlock()
		return types.GeneratedImage{}, types.NewError(types.ErrInvalidState, "there is no generated image to save")
	}
	if s.saved {
		s.mu.Unlock()
		return types.GeneratedImage{}, types.NewError(types.ErrInvalidState, "image already saved")
	}
	id, err := s.opts.NewID()
	if err != nil {
		s.mu.Unlock()
		return types.GeneratedImage{}, types.NewError(types.ErrInternalError, "failed to allocate image id").WithCause(err)
	}
	img := types.GeneratedImage{
		ID:            id,
		URL:           s.result.ImageURL,
		StyleID:       s.generated.styleID,
		UploadedImage: s.generated.uploaded,
		Timestamp:     s.opts.Now().UTC().Format(timestampLayout),
		Provider:      s.result.Provider,
		Model:         s.result.Model,
	}
	s.saved = true
	token := s.token
	s.mu.Unlock()

	if err := s.gallery.Append(ctx, img); err != nil {
		s.mu.Lock()
		if token == s.token {
			s.saved = false
		}
		s.mu.Unlock()
		return types.GeneratedImage{}, err
	}
	return img, nil
}

func (s *Session) activeInputLocked() string {
	switch s.mode {
	case InputText:
		return strings.TrimSpace(s.text)
	case InputUpload:
		return s.uploaded
	default:
		return ""
	}
}

// settleLocked drops a finished result once the inputs change.
func (s *Session) settleLocked() {
	if s.phase == PhaseSucceeded || s.phase == PhaseFailed {
		s.phase = PhaseIdle
		s.result = nil
		s.lastErr = nil
		s.saved = false
	}
}

func (s *Session) failValidationLocked(err *types.Error) (Snapshot, error) {
	defer s.mu.Unlock()
	s.phase = PhaseFailed
	s.result = nil
	s.lastErr = viewOf(err)
	return s.snapshotLocked(), err
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:         s.phase,
		StyleID:       s.styleID,
		InputMode:     s.mode,
		InputText:     s.text,
		UploadedImage: s.uploaded,
		Saved:         s.saved,
	}
	if s.result != nil {
		res := *s.result
		snap.Result = &res
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.Error = &e
	}
	return snap
}

func viewOf(err error) *ErrorView {
	if e, ok := types.AsError(err); ok {
		return &ErrorView{Code: e.Code, Message: e.Message}
	}
	return &ErrorView{Code: types.ErrProviderError, Message: err.Error()}
}
