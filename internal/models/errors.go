package models

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the pipeline stage and sub-case that failed a job.
// The numeric values are the codes published to operators in notifications.
type ErrorCode int

// Job error codes.
const (
	CodeSourceNotFound         ErrorCode = 600
	CodeUploadFailed           ErrorCode = 601
	CodeSubtitleSourceNotFound ErrorCode = 602
	CodeDownloadFailed         ErrorCode = 603

	CodePrepareFailed         ErrorCode = 700
	CodeChangeContainerFailed ErrorCode = 701
	CodeExtractSubtitleFailed ErrorCode = 702
	CodeTextHardsubFailed     ErrorCode = 703
	CodeHardsubFailed         ErrorCode = 704
	CodeStageFailed           ErrorCode = 705

	CodeProbeFailed            ErrorCode = 800
	CodeInvalidVideoIndex      ErrorCode = 801
	CodeInvalidAudioIndex      ErrorCode = 802
	CodeInvalidSubtitleIndex   ErrorCode = 803
	CodeNoSubtitleStreamInFile ErrorCode = 804

	CodeProcessFailed  ErrorCode = 900
	CodeProcessKilled  ErrorCode = 901
	CodeInvalidPayload ErrorCode = 902
)

// Stage is the pipeline stage an error originated in.
type Stage string

// Pipeline stages.
const (
	StageIngress  Stage = "ingress"
	StageDownload Stage = "download"
	StageProbe    Stage = "probe"
	StageSelect   Stage = "select"
	StagePrepare  Stage = "prepare"
	StageHardsub  Stage = "hardsub"
	StageUpload   Stage = "upload"
	StageExec     Stage = "exec"
)

// Category decides how the broker disposes of a message whose job failed.
type Category string

// Error categories.
const (
	// CategoryNone means no error.
	CategoryNone Category = ""
	// CategoryTransient failures are requeued for redelivery.
	CategoryTransient Category = "transient"
	// CategoryKilled failures are abandoned: neither acked nor requeued.
	CategoryKilled Category = "killed"
	// CategoryValidation failures are rejected permanently.
	CategoryValidation Category = "validation"
)

type codeInfo struct {
	name     string
	stage    Stage
	category Category
}

var codes = map[ErrorCode]codeInfo{
	CodeSourceNotFound:         {"SourceNotFound", StageDownload, CategoryTransient},
	CodeUploadFailed:           {"UploadFailed", StageUpload, CategoryTransient},
	CodeSubtitleSourceNotFound: {"SubtitleSourceNotFound", StageDownload, CategoryTransient},
	CodeDownloadFailed:         {"DownloadFailed", StageDownload, CategoryTransient},
	CodePrepareFailed:          {"PrepareFailed", StagePrepare, CategoryTransient},
	CodeChangeContainerFailed:  {"ChangeContainerFailed", StageHardsub, CategoryTransient},
	CodeExtractSubtitleFailed:  {"ExtractSubtitleFailed", StageHardsub, CategoryTransient},
	CodeTextHardsubFailed:      {"TextHardsubFailed", StageHardsub, CategoryTransient},
	CodeHardsubFailed:          {"HardsubFailed", StageHardsub, CategoryTransient},
	CodeStageFailed:            {"StageFailed", StagePrepare, CategoryTransient},
	CodeProbeFailed:            {"ProbeFailed", StageProbe, CategoryTransient},
	CodeInvalidVideoIndex:      {"InvalidVideoIndex", StageSelect, CategoryTransient},
	CodeInvalidAudioIndex:      {"InvalidAudioIndex", StageSelect, CategoryTransient},
	CodeInvalidSubtitleIndex:   {"InvalidSubtitleIndex", StageSelect, CategoryTransient},
	CodeNoSubtitleStreamInFile: {"NoSubtitleStreamInFile", StageSelect, CategoryTransient},
	CodeProcessFailed:          {"ProcessFailed", StageExec, CategoryTransient},
	CodeProcessKilled:          {"ProcessKilled", StageExec, CategoryKilled},
	CodeInvalidPayload:         {"InvalidPayload", StageIngress, CategoryValidation},
}

// Name returns the symbolic name of the code.
func (c ErrorCode) Name() string {
	if info, ok := codes[c]; ok {
		return info.name
	}
	return "Unknown"
}

// Stage returns the stage the code belongs to.
func (c ErrorCode) Stage() Stage {
	return codes[c].stage
}

// Category returns how failures with this code are disposed of.
func (c ErrorCode) Category() Category {
	if info, ok := codes[c]; ok {
		return info.category
	}
	return CategoryTransient
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	return fmt.Sprintf("%d %s", int(c), c.Name())
}

// Known reports whether c is part of the closed set of codes.
func (c ErrorCode) Known() bool {
	_, ok := codes[c]
	return ok
}

// Error is a job failure tagged with its code. Stage defaults to the code's stage.
type Error struct {
	Code    ErrorCode
	Stage   Stage
	Message string
	Err     error
}

// killer is implemented by errors describing a deliberately cancelled child process.
type killer interface {
	Killed() bool
}

// NewError tags err with code. If err was caused by a killed child process
// the result carries CodeProcessKilled instead, keeping the stage that was running.
func NewError(code ErrorCode, err error) *Error {
	e := &Error{Code: code, Stage: code.Stage(), Err: err}
	if IsKilled(err) {
		e.Code = CodeProcessKilled
	}
	return e
}

// Errorf creates an Error with a formatted message and no cause.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Stage: code.Stage(), Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		return fmt.Sprintf("%s (stage %s)", e.Code, e.Stage)
	}
	return fmt.Sprintf("%s (stage %s): %s", e.Code, e.Stage, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Category returns the category of the error's code.
func (e *Error) Category() Category {
	return e.Code.Category()
}

// Killed reports whether the job was cancelled rather than failed.
func (e *Error) Killed() bool {
	return e.Code == CodeProcessKilled
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, CodeProcessKilled for a bare kill,
// CodeProcessFailed for any other untagged error, or zero for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return 0
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	if IsKilled(err) {
		return CodeProcessKilled
	}
	return CodeProcessFailed
}

// CategoryOf returns the disposition category for err.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}
	return CodeOf(err).Category()
}

// IsKilled reports whether err was caused by a deliberately killed child process.
func IsKilled(err error) bool {
	var k killer
	return errors.As(err, &k) && k.Killed()
}

// Validation messages returned to ingress callers.
const (
	MsgMalformedJSON      = "Malformed JSON"
	MsgMissingRequiredKey = "Missing required key"
	MsgInvalidSchema      = "Invalid schema"
)

// ValidationError returns an InvalidPayload error carrying one of the validation messages.
func ValidationError(msg string, cause error) *Error {
	return &Error{Code: CodeInvalidPayload, Stage: StageIngress, Message: msg, Err: cause}
}
