package camera

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesCode(t *testing.T) {
	err := newError(CodeDeviceBusy, "open", "device %q busy", "cam0")

	assert.True(t, errors.Is(err, ErrDeviceBusy))
	assert.False(t, errors.Is(err, ErrDeviceNotFound))

	wrapped := fmt.Errorf("pipeline: %w", err)
	assert.True(t, errors.Is(wrapped, ErrDeviceBusy))
	assert.Equal(t, CodeDeviceBusy, CodeOf(wrapped))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Code: CodeInvalidState}, "INVALID_STATE"},
		{&Error{Code: CodeInvalidState, Op: "start"}, "start: INVALID_STATE"},
		{&Error{Code: CodeNotAttached, Op: "stop", Message: "input released"}, "stop: NOT_ATTACHED: input released"},
		{wrapError(CodeUnknown, "open", errors.New("ioctl failed")), "open: UNKNOWN: ioctl failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, CodePipelineStartFailed, CodeOf(wrapError(CodePipelineStartFailed, "start", errors.New("x"))))
}

func TestEnumText(t *testing.T) {
	var f FlashMode
	assert.NoError(t, f.UnmarshalText([]byte("always_open")))
	assert.Equal(t, FlashAlwaysOpen, f)
	assert.Error(t, f.UnmarshalText([]byte("strobe")))

	var format Format
	assert.NoError(t, format.UnmarshalText([]byte("jpeg")))
	assert.Equal(t, FormatJPEG, format)

	assert.Equal(t, "unknown(9)", FocusMode(9).String())
}

func TestValidateStreams(t *testing.T) {
	cs := newCapabilitySet(Capabilities{
		PreviewFormats: []Format{FormatYUV420SP},
		Sizes:          []FormatSizes{{Format: FormatYUV420SP, Sizes: []Size{{Width: 640, Height: 480}}}},
		MetadataTypes:  []MetadataObjectType{MetadataFace},
		MaxStreams:     1,
	})

	preview := cs.resolveStream(StreamConfig{Kind: KindPreview})
	assert.Equal(t, FormatYUV420SP, preview.Format)
	assert.Equal(t, Size{Width: 640, Height: 480}, preview.Size)

	meta := cs.resolveStream(StreamConfig{Kind: KindMetadata})
	assert.Equal(t, []MetadataObjectType{MetadataFace}, meta.MetadataTypes)

	assert.NoError(t, cs.validateStreams([]StreamConfig{preview, meta}))
	assert.Error(t, cs.validateStreams([]StreamConfig{preview, preview}))
	assert.Error(t, cs.validateStreams([]StreamConfig{{Kind: KindPhoto, Format: FormatJPEG}}))
}
