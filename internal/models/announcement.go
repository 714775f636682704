package models

import (
	"encoding/json"
	"fmt"
	"path"
)

// Announcement is the broker message published when a new episode airs.
type Announcement struct {
	Show    string `json:"show"`
	Episode string `json:"episode"`
}

// DecodeAnnouncement parses an announcement and maps it onto a Job rooted at
// inputRoot/outputRoot. The resulting job passes the same schema checks as a
// direct payload.
func DecodeAnnouncement(data []byte, inputRoot, outputRoot string) (Job, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		if err == nil {
			err = fmt.Errorf("payload is not an object")
		}
		return Job{}, ValidationError(MsgMalformedJSON, err)
	}

	for _, key := range []string{"show", "episode"} {
		value, ok := raw[key]
		if !ok {
			return Job{}, ValidationError(MsgMissingRequiredKey, fmt.Errorf("missing %q", key))
		}
		if _, err := checkKind(kindString, value); err != nil {
			return Job{}, ValidationError(MsgInvalidSchema, fmt.Errorf("key %q: %w", key, err))
		}
	}

	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return Job{}, ValidationError(MsgInvalidSchema, err)
	}
	return a.Job(inputRoot, outputRoot), nil
}

// Job converts the announcement into a hardsub job.
func (a Announcement) Job(inputRoot, outputRoot string) Job {
	return Job{
		InputFile:    path.Join(inputRoot, a.Show, a.Episode),
		OutputFolder: path.Join(outputRoot, a.Show),
		ShowName:     a.Show,
	}
}

// StatusMessage is published to the outbound exchange when a job completes.
type StatusMessage struct {
	Show     string `json:"show"`
	Episode  string `json:"episode"`
	Filesize int64  `json:"filesize"`
	Sub      string `json:"sub"`
}
