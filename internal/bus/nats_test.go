// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bus

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_computer/internal/step"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestStepPublisher_Publish(t *testing.T) {
	fp := &fakePublisher{}
	p := NewStepPublisher(fp, "steps")

	ev := step.Event{Session: "s1", Kind: step.EventFused, TimestampNanos: 42, Count: 3, Decision: "accepted"}
	require.NoError(t, p.Publish(ev))

	require.Len(t, fp.subjects, 1)
	assert.Equal(t, "steps.fused", fp.subjects[0])

	var got step.Event
	require.NoError(t, json.Unmarshal(fp.payloads[0], &got))
	assert.Equal(t, ev, got)
}

func TestStepPublisher_PublishError(t *testing.T) {
	boom := errors.New("boom")
	p := NewStepPublisher(&fakePublisher{err: boom}, "steps")

	err := p.Publish(step.Event{Kind: step.EventCandidate})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "steps.candidate")
}
