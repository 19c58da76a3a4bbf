// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialimu

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/imu"
)

// Open opens a serial port in 8N1 mode.
func Open(portName string, baudRate uint) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serialimu: open %s: %w", portName, err)
	}
	return port, nil
}

// Reader turns a byte stream of sentences into samples. It implements
// imu.Source.
type Reader struct {
	r      *bufio.Reader
	parser *nmea.SentenceParser
	log    *zap.Logger

	skipped int
}

// NewReader wraps r. A nil logger discards skipped-line diagnostics.
func NewReader(r io.Reader, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{r: bufio.NewReader(r), parser: NewParser(), log: log}
}

// Next returns the next sample. Noise, partial lines, bad checksums and
// other NMEA sentences are skipped. It returns io.EOF when the stream ends.
func (r *Reader) Next() ([]imu.Sample, error) {
	for {
		line, err := r.r.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if s, ok := r.parse(line); ok {
				return []imu.Sample{s}, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

func (r *Reader) parse(line string) (imu.Sample, bool) {
	// Sentences start with '$'; anything else is boot chatter or noise.
	if !strings.HasPrefix(line, "$") {
		r.skipped++
		return imu.Sample{}, false
	}
	sentence, err := r.parser.Parse(line)
	if err != nil {
		r.skipped++
		r.log.Debug("serialimu: skip line", zap.String("line", line), zap.Error(err))
		return imu.Sample{}, false
	}
	ss, ok := sentence.(SampleSentence)
	if !ok {
		r.skipped++
		return imu.Sample{}, false
	}
	return ss.Sample, true
}

// Skipped is the number of lines ignored so far.
func (r *Reader) Skipped() int {
	return r.skipped
}
