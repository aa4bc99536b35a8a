package store

import (
	"fmt"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Asset bodies are stored zstd-compressed; headers are stored as
// deterministic CBOR so identical responses produce identical rows.
var (
	bodyEncoder *zstd.Encoder
	bodyDecoder *zstd.Decoder
	headerEnc   cbor.EncMode
)

func init() {
	var err error
	bodyEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	bodyDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
	headerEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
}

func compressBody(body []byte) []byte {
	return bodyEncoder.EncodeAll(body, make([]byte, 0, len(body)/2))
}

func decompressBody(data []byte) ([]byte, error) {
	body, err := bodyDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress body: %w", err)
	}
	return body, nil
}

func encodeHeader(h http.Header) ([]byte, error) {
	if h == nil {
		h = http.Header{}
	}
	data, err := headerEnc.Marshal(map[string][]string(h))
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	return data, nil
}

func decodeHeader(data []byte) (http.Header, error) {
	var m map[string][]string
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	return http.Header(m), nil
}
