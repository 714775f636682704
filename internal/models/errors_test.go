package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type killedErr struct{}

func (killedErr) Error() string { return "signal: killed" }
func (killedErr) Killed() bool  { return true }

func TestErrorCode_Metadata(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		name     string
		stage    Stage
		category Category
	}{
		{CodeSourceNotFound, "SourceNotFound", StageDownload, CategoryTransient},
		{CodeUploadFailed, "UploadFailed", StageUpload, CategoryTransient},
		{CodeHardsubFailed, "HardsubFailed", StageHardsub, CategoryTransient},
		{CodeInvalidAudioIndex, "InvalidAudioIndex", StageSelect, CategoryTransient},
		{CodeProcessKilled, "ProcessKilled", StageExec, CategoryKilled},
		{CodeInvalidPayload, "InvalidPayload", StageIngress, CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.code.Known())
			assert.Equal(t, tt.name, tt.code.Name())
			assert.Equal(t, tt.stage, tt.code.Stage())
			assert.Equal(t, tt.category, tt.code.Category())
		})
	}

	assert.False(t, ErrorCode(42).Known())
	assert.Equal(t, "Unknown", ErrorCode(42).Name())
	assert.Equal(t, "704 HardsubFailed", CodeHardsubFailed.String())
}

func TestNewError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewError(CodePrepareFailed, cause)

	assert.Equal(t, CodePrepareFailed, err.Code)
	assert.Equal(t, StagePrepare, err.Stage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "700 PrepareFailed (stage prepare): exit status 1", err.Error())
}

func TestNewError_KilledOverridesCode(t *testing.T) {
	err := NewError(CodeTextHardsubFailed, fmt.Errorf("running ffmpeg: %w", killedErr{}))

	assert.Equal(t, CodeProcessKilled, err.Code)
	assert.Equal(t, StageHardsub, err.Stage)
	assert.Equal(t, CategoryKilled, CategoryOf(err))
	assert.True(t, IsKilled(fmt.Errorf("job: %w", err)))
}

func TestIsKilled_TaggedErrors(t *testing.T) {
	assert.True(t, IsKilled(Errorf(CodeProcessKilled, "cancelled before download")))
	assert.False(t, IsKilled(Errorf(CodeSourceNotFound, "missing")))
	assert.False(t, IsKilled(errors.New("plain")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(0), CodeOf(nil))
	assert.Equal(t, CodeUploadFailed, CodeOf(fmt.Errorf("wrapped: %w", Errorf(CodeUploadFailed, "dest %s", "x:"))))
	assert.Equal(t, CodeProcessKilled, CodeOf(killedErr{}))
	assert.Equal(t, CodeProcessFailed, CodeOf(errors.New("plain")))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryNone, CategoryOf(nil))
	assert.Equal(t, CategoryTransient, CategoryOf(errors.New("plain")))
	assert.Equal(t, CategoryValidation, CategoryOf(ValidationError(MsgInvalidSchema, nil)))
}

func TestError_Message(t *testing.T) {
	err := Errorf(CodeSourceNotFound, "%s not found in any source", "a.mkv")
	assert.Equal(t, "600 SourceNotFound (stage download): a.mkv not found in any source", err.Error())

	bare := &Error{Code: CodeHardsubFailed, Stage: StageHardsub}
	assert.Equal(t, "704 HardsubFailed (stage hardsub)", bare.Error())

	both := &Error{Code: CodeInvalidPayload, Stage: StageIngress, Message: MsgInvalidSchema, Err: errors.New(`key "x"`)}
	assert.Equal(t, `902 InvalidPayload (stage ingress): Invalid schema: key "x"`, both.Error())
}

func TestAsError(t *testing.T) {
	_, ok := AsError(errors.New("plain"))
	assert.False(t, ok)

	e, ok := AsError(fmt.Errorf("outer: %w", NewError(CodeProbeFailed, errors.New("bad json"))))
	require.True(t, ok)
	assert.Equal(t, CodeProbeFailed, e.Code)
}
