// Package errors wraps errors with component, category and context metadata
// and forwards them to an optional telemetry reporter.
//
// Errors are built fluently:
//
//	errors.New(err).
//		Component("audiocore").
//		Category(errors.CategoryAudioDevice).
//		Context("device", name).
//		Build()
//
// Packages whose errors can be returned on the audio thread build their
// sentinels once at init, so returning them later does not allocate.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for filtering, metrics and telemetry.
type ErrorCategory string

// CategorizedError is implemented by errors that know their own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryConflict       ErrorCategory = "conflict"
	CategoryState          ErrorCategory = "state"
	CategoryLimit          ErrorCategory = "limit"
	CategoryResource       ErrorCategory = "resource"
	CategoryAudio          ErrorCategory = "audio-processing"
	CategoryAudioDevice    ErrorCategory = "audio-device"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryNetwork        ErrorCategory = "network"
	CategoryHTTP           ErrorCategory = "http-request"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategorySystem         ErrorCategory = "system-resource"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryGeneric        ErrorCategory = "generic"
)

// Priorities accepted by ErrorBuilder.Priority.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is reported when no component was set or detected.
const ComponentUnknown = "unknown"

// EnhancedError is an error with the metadata collected by ErrorBuilder.
type EnhancedError struct {
	Err       error
	component string
	Category  ErrorCategory
	Priority  string // empty unless set explicitly
	Context   map[string]any
	Timestamp time.Time
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.Category)
	}
	return ee.Err.Error()
}

func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches target when it is the same EnhancedError or one wrapping the
// same underlying error. Two sentinels built from equal messages do not
// match each other.
func (ee *EnhancedError) Is(target error) bool {
	other, ok := target.(*EnhancedError)
	if !ok {
		return false
	}
	return ee == other || (ee.Err != nil && ee.Err == other.Err)
}

// GetComponent returns the component that produced the error.
func (ee *EnhancedError) GetComponent() string {
	if ee.component == "" {
		return ComponentUnknown
	}
	return ee.component
}

// GetPriority returns the explicit priority, or "" when none was set.
func (ee *EnhancedError) GetPriority() string {
	return ee.Priority
}

// GetContext returns a copy of the context fields.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// GetTimestamp returns when the error was built.
func (ee *EnhancedError) GetTimestamp() time.Time {
	return ee.Timestamp
}

// MarkReported records that the error was sent to telemetry.
func (ee *EnhancedError) MarkReported() {
	ee.reported.Store(true)
}

// IsReported reports whether the error was sent to telemetry.
func (ee *EnhancedError) IsReported() bool {
	return ee.reported.Load()
}

// ErrorBuilder collects metadata for an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts building an error around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf is New(fmt.Errorf(format, args...)).
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name. Without it the component is detected
// from the call stack when telemetry is active.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority overrides the priority derived from the category. Unknown values
// become PriorityMedium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

// Context adds a key/value pair. A repeated key keeps the last value.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any, 2)
	}
	eb.context[key] = value
	return eb
}

// Timing records the operation and how long it ran before failing, in
// milliseconds.
func (eb *ErrorBuilder) Timing(operation string, elapsed time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", elapsed.Milliseconds())
}

// Build returns the EnhancedError and hands it to the telemetry reporter, if
// one is installed.
func (eb *ErrorBuilder) Build() *EnhancedError {
	err := eb.err
	if err == nil {
		err = stderrors.New(string(eb.category))
	}

	reporting := hasActiveReporting.Load()
	component, category := eb.component, eb.category
	if component == "" {
		component = ComponentUnknown
		// stack walking only pays off when the error is reported
		if reporting {
			component = detectComponent()
		}
	}
	if category == "" {
		category = CategoryGeneric
		if reporting {
			category = detectCategory(err)
		}
	}

	ee := &EnhancedError{
		Err:       err,
		component: component,
		Category:  category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if reporting {
		reportToTelemetry(ee)
	}
	return ee
}

// components maps package paths to component names, most specific first.
var components = []struct{ pkg, name string }{
	{"internal/audiocore/engines", "audio-engine"},
	{"internal/audiocore", "audiocore"},
	{"internal/params", "params"},
	{"internal/capture", "capture"},
	{"internal/conf", "configuration"},
	{"internal/httpserver", "httpserver"},
	{"internal/mqtt", "mqtt"},
	{"internal/ui", "ui"},
	{"internal/app", "app"},
}

const errorsPackagePath = "github.com/tphakala/rtsync/internal/errors"

// detectComponent returns the component of the first caller outside this
// package.
func detectComponent() string {
	var pcs [16]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, errorsPackagePath) {
			if name := componentOf(frame.Function); name != ComponentUnknown {
				return name
			}
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func componentOf(funcName string) string {
	for _, c := range components {
		if strings.Contains(funcName, c.pkg) {
			return c.name
		}
	}
	return ComponentUnknown
}

// detectCategory takes the category from the error chain, falling back to
// keywords in the message.
func detectCategory(err error) ErrorCategory {
	var categorized CategorizedError
	if stderrors.As(err, &categorized) {
		return categorized.ErrorCategory()
	}
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) && enhanced.Category != "" {
		return enhanced.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device"):
		return CategoryAudioDevice
	case strings.Contains(msg, "mqtt") || strings.Contains(msg, "broker"):
		return CategoryMQTTConnection
	case strings.Contains(msg, "file") || strings.Contains(msg, "open"):
		return CategoryFileIO
	case strings.Contains(msg, "connection") || strings.Contains(msg, "dial"):
		return CategoryNetwork
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "invalid"):
		return CategoryValidation
	}
	return CategoryGeneric
}

// NewStd is the standard library errors.New.
func NewStd(text string) error {
	return stderrors.New(text)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhanced *EnhancedError
	return As(err, &enhanced) && enhanced.Category == category
}

// IsNotFound is IsCategory(err, CategoryNotFound).
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
