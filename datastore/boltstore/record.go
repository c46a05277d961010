// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package boltstore

import (
	"bytes"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

const (
	typePayload     tlv.Type = 0
	typePublishedAt tlv.Type = 1
)

// record is a stored message.
type record struct {
	payload []byte

	// publishedAt is the publish time in unix nanoseconds.
	publishedAt uint64
}

func (r *record) stream() (*tlv.Stream, error) {
	return tlv.NewStream(
		tlv.MakePrimitiveRecord(typePayload, &r.payload),
		tlv.MakePrimitiveRecord(typePublishedAt, &r.publishedAt),
	)
}

// encode serializes the record as a TLV stream.
func (r *record) encode(w io.Writer) error {
	stream, err := r.stream()
	if err != nil {
		return err
	}
	return stream.Encode(w)
}

// decodeRecord parses a TLV encoded record.
func decodeRecord(data []byte) (*record, error) {
	var r record
	stream, err := r.stream()
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return &r, nil
}
