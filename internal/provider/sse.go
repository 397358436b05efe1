// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log"
)

// MaxLineSize is the maximum allowed size for a single SSE line (64KB).
const MaxLineSize = 64 * 1024

// dataPrefix marks the lines of interest in the event stream.
var dataPrefix = []byte("data: ")

// doneSignal is the distinguished terminal payload.
var doneSignal = []byte("[DONE]")

// =============================================================================
// SSE DECODER
// =============================================================================

// Decoder turns a raw incremental response transport into an ordered
// sequence of text deltas.
//
// The transport is line-oriented: lines without the "data: " prefix are
// ignored, a "data: [DONE]" payload ends the stream, and every other data
// line is a JSON chunk whose nested delta-content field carries the next
// text delta. Malformed chunks are skipped and counted, never fatal: the
// decoder favors availability of partial output over strict correctness of
// every fragment. The buffered reader reassembles lines, so a terminal
// signal split across delivery boundaries decodes like any other.
type Decoder struct {
	reader *bufio.Reader

	done      bool
	parseErrs int
}

// streamChunk is the wire shape of one data line.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader: bufio.NewReaderSize(r, 4096),
	}
}

// Next returns the next text delta. done is true once the terminal signal
// (or a finish reason, or EOF) has been seen; after that every call reports
// done without touching the transport, so no delta is ever emitted twice.
func (d *Decoder) Next() (delta string, done bool, err error) {
	if d.done {
		return "", true, nil
	}

	for {
		line, oversized, err := d.readLine()
		if oversized {
			d.parseErrs++
			log.Printf("stream decode: skipping oversized line (%d so far)", d.parseErrs)
			if err == nil {
				continue
			}
		}
		if err != nil {
			if err == io.EOF {
				// A final unterminated line may still carry data.
				if payload, ok := d.dataPayload(line); ok {
					if delta, done := d.decodePayload(payload); done || delta != "" {
						d.done = d.done || done
						return delta, d.done, nil
					}
				}
				d.done = true
				return "", true, nil
			}
			return "", false, err
		}

		payload, ok := d.dataPayload(line)
		if !ok {
			continue // not a data line
		}

		delta, finished := d.decodePayload(payload)
		if finished {
			d.done = true
			return delta, true, nil
		}
		if delta != "" {
			return delta, false, nil
		}
		// Empty delta (role preamble, keep-alive): keep reading.
	}
}

// readLine returns the next line, retaining at most MaxLineSize bytes.
// Once a line crosses the cap the remainder is drained to the newline
// without being kept, so an oversized line never grows the buffer.
func (d *Decoder) readLine() (line []byte, oversized bool, err error) {
	var buf []byte
	for {
		frag, err := d.reader.ReadSlice('\n')
		if len(buf)+len(frag) > MaxLineSize {
			for err == bufio.ErrBufferFull {
				_, err = d.reader.ReadSlice('\n')
			}
			return nil, true, err
		}
		buf = append(buf, frag...)
		if err == bufio.ErrBufferFull {
			continue
		}
		return buf, false, err
	}
}

// dataPayload extracts the payload of a data line, reporting ok=false for
// lines without the prefix.
func (d *Decoder) dataPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	return bytes.TrimSpace(line[len(dataPrefix):]), true
}

// decodePayload parses one data payload into a delta and a done flag.
// Malformed payloads are swallowed and logged, never propagated.
func (d *Decoder) decodePayload(payload []byte) (delta string, done bool) {
	if len(payload) == 0 {
		return "", false
	}
	if bytes.Equal(payload, doneSignal) {
		return "", true
	}

	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		d.parseErrs++
		log.Printf("stream decode: skipping malformed chunk (%d so far)", d.parseErrs)
		return "", false
	}

	if len(chunk.Choices) == 0 {
		return "", false
	}
	choice := chunk.Choices[0]
	return choice.Delta.Content, choice.FinishReason != ""
}

// ParseErrors returns how many malformed fragments were skipped.
func (d *Decoder) ParseErrors() int {
	return d.parseErrs
}
