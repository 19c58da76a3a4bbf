// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package serialimu reads inertial samples framed as NMEA 0183 sentences
// from a serial line, e.g. a microcontroller streaming its IMU:
//
//	$IMACC,<t_ns>,<x>,<y>,<z>*CS   acceleration, g
//	$IMLIN,<t_ns>,<x>,<y>,<z>*CS   linear acceleration, g
//	$IMGYR,<t_ns>,<x>,<y>,<z>*CS   angular rate, rad/s
//
// The NMEA framing gives line sync and a checksum for free.
package serialimu

import (
	"errors"
	"fmt"
	"strconv"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/step_computer/internal/imu"
)

// Talker is the talker ID used by every sample sentence.
const Talker = "IM"

// Sentence types.
const (
	TypeAccel  = "ACC"
	TypeLinear = "LIN"
	TypeGyro   = "GYR"
)

// ErrNotSample is returned for well-formed NMEA sentences that do not
// carry an inertial sample.
var ErrNotSample = errors.New("serialimu: not a sample sentence")

var typeKinds = map[string]imu.Kind{
	TypeAccel:  imu.KindAccel,
	TypeLinear: imu.KindLinear,
	TypeGyro:   imu.KindGyro,
}

var kindTypes = map[imu.Kind]string{
	imu.KindAccel:  TypeAccel,
	imu.KindLinear: TypeLinear,
	imu.KindGyro:   TypeGyro,
}

// SampleSentence is a parsed $IMxxx sentence.
type SampleSentence struct {
	nmea.BaseSentence
	Sample imu.Sample
}

// NewParser returns an NMEA parser that understands the sample sentences
// in addition to the standard ones.
func NewParser() *nmea.SentenceParser {
	return &nmea.SentenceParser{
		CustomParsers: map[string]nmea.ParserFunc{
			TypeAccel:  parseSample,
			TypeLinear: parseSample,
			TypeGyro:   parseSample,
		},
	}
}

func parseSample(s nmea.BaseSentence) (nmea.Sentence, error) {
	kind, ok := typeKinds[s.Type]
	if !ok || s.Talker != Talker {
		return nil, fmt.Errorf("%w: %s", ErrNotSample, s.Prefix())
	}
	p := nmea.NewParser(s)
	out := SampleSentence{
		BaseSentence: s,
		Sample: imu.Sample{
			Kind:           kind,
			TimestampNanos: p.Int64(0, "timestamp"),
			X:              p.Float64(1, "x"),
			Y:              p.Float64(2, "y"),
			Z:              p.Float64(3, "z"),
		},
	}
	return out, p.Err()
}

// Format encodes a sample as a checksummed sentence (without line ending).
func Format(s imu.Sample) (string, error) {
	typ, ok := kindTypes[s.Kind]
	if !ok {
		return "", fmt.Errorf("serialimu: cannot encode kind %q", s.Kind)
	}
	body := fmt.Sprintf("%s%s,%d,%s,%s,%s", Talker, typ, s.TimestampNanos,
		formatFloat(s.X), formatFloat(s.Y), formatFloat(s.Z))
	return "$" + body + "*" + nmea.Checksum(body), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
