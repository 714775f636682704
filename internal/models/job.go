package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
)

// Job is one requested hardsub. Optional numeric fields are pointers so an
// explicit zero is distinguishable from unset.
type Job struct {
	InputFile      string   `json:"inputFile"`
	OutputFolder   string   `json:"outputFolder"`
	ShowName       string   `json:"showName,omitempty"`
	SubtitleFile   string   `json:"subtitleFile,omitempty"`
	SubtitleOffset *float64 `json:"subtitleOffset,omitempty"`
	VideoIndex     *int     `json:"videoIndex,omitempty"`
	AudioIndex     *int     `json:"audioIndex,omitempty"`
	SubIndex       *int     `json:"subIndex,omitempty"`
	FontStyle      string   `json:"fontStyle,omitempty"`
	FontSize       *float64 `json:"fontSize,omitempty"`
}

// fieldKind is the JSON type a job key must carry.
type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindIndex
)

// jobSchema enumerates the allowed payload keys.
var jobSchema = map[string]fieldKind{
	"inputFile":      kindString,
	"outputFolder":   kindString,
	"showName":       kindString,
	"subtitleFile":   kindString,
	"subtitleOffset": kindNumber,
	"videoIndex":     kindIndex,
	"audioIndex":     kindIndex,
	"subIndex":       kindIndex,
	"fontStyle":      kindString,
	"fontSize":       kindNumber,
}

// RequiredJobKeys are the keys every payload must carry.
var RequiredJobKeys = []string{"inputFile", "outputFolder"}

// DecodeJob parses and validates a raw payload. Failures are *Error values
// with CodeInvalidPayload and one of the Msg* messages.
func DecodeJob(data []byte) (Job, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		if err == nil {
			err = fmt.Errorf("payload is not an object")
		}
		return Job{}, ValidationError(MsgMalformedJSON, err)
	}
	return decodeFields(raw)
}

func decodeFields(raw map[string]json.RawMessage) (Job, error) {
	for _, key := range RequiredJobKeys {
		if _, ok := raw[key]; !ok {
			return Job{}, ValidationError(MsgMissingRequiredKey, fmt.Errorf("missing %q", key))
		}
	}

	for key, value := range raw {
		kind, ok := jobSchema[key]
		if !ok {
			return Job{}, ValidationError(MsgInvalidSchema, fmt.Errorf("unknown key %q", key))
		}
		normalized, err := checkKind(kind, value)
		if err != nil {
			return Job{}, ValidationError(MsgInvalidSchema, fmt.Errorf("key %q: %w", key, err))
		}
		raw[key] = normalized
	}

	var job Job
	encoded, err := json.Marshal(raw)
	if err != nil {
		return Job{}, ValidationError(MsgMalformedJSON, err)
	}
	if err := json.Unmarshal(encoded, &job); err != nil {
		return Job{}, ValidationError(MsgInvalidSchema, err)
	}
	return job, nil
}

// checkKind verifies value has the JSON type kind requires. Integral indices
// written as floats (2.0) are normalized so they decode into an int.
func checkKind(kind fieldKind, value json.RawMessage) (json.RawMessage, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return nil, fmt.Errorf("empty value")
	}

	switch kind {
	case kindString:
		if value[0] != '"' {
			return nil, fmt.Errorf("expected string")
		}
	case kindNumber, kindIndex:
		f, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number")
		}
		if kind == kindIndex {
			if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
				return nil, fmt.Errorf("expected a non-negative integer")
			}
			return json.RawMessage(strconv.Itoa(int(f))), nil
		}
	}
	return value, nil
}

// Validate re-checks a Job built in code against the same rules as DecodeJob.
func (j Job) Validate() error {
	if j.InputFile == "" || j.OutputFolder == "" {
		return ValidationError(MsgMissingRequiredKey, fmt.Errorf("inputFile and outputFolder are required"))
	}
	for name, idx := range map[string]*int{"videoIndex": j.VideoIndex, "audioIndex": j.AudioIndex, "subIndex": j.SubIndex} {
		if idx != nil && *idx < 0 {
			return ValidationError(MsgInvalidSchema, fmt.Errorf("key %q: expected a non-negative integer", name))
		}
	}
	return nil
}

// InputName returns the base name of the input file.
func (j Job) InputName() string {
	return path.Base(j.InputFile)
}

// OutputName returns the name of the produced file: the input's base name with an .mp4 extension.
func (j Job) OutputName() string {
	base := j.InputName()
	return strings.TrimSuffix(base, path.Ext(base)) + ".mp4"
}

// Field is a single job key for display.
type Field struct {
	Name  string
	Value string
}

// Fields returns the set keys in schema order.
func (j Job) Fields() []Field {
	fields := []Field{
		{"inputFile", j.InputFile},
		{"outputFolder", j.OutputFolder},
	}
	addString := func(name, v string) {
		if v != "" {
			fields = append(fields, Field{name, v})
		}
	}
	addFloat := func(name string, v *float64) {
		if v != nil {
			fields = append(fields, Field{name, strconv.FormatFloat(*v, 'f', -1, 64)})
		}
	}
	addInt := func(name string, v *int) {
		if v != nil {
			fields = append(fields, Field{name, strconv.Itoa(*v)})
		}
	}

	addString("showName", j.ShowName)
	addString("subtitleFile", j.SubtitleFile)
	addFloat("subtitleOffset", j.SubtitleOffset)
	addInt("videoIndex", j.VideoIndex)
	addInt("audioIndex", j.AudioIndex)
	addInt("subIndex", j.SubIndex)
	addString("fontStyle", j.FontStyle)
	addFloat("fontSize", j.FontSize)
	return fields
}
