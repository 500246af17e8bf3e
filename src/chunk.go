package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Fixed-size unit of PCM audio.
 *
 * Description: Everything in the bridge speaks 50 ms of 48 kHz mono
 *		signed 16 bit audio.  Ingest slices device periods into
 *		chunks, the mixer consumes at most one chunk per source
 *		per tick, and the outputs take whole chunks.  Nothing
 *		below this granularity is scheduled.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"time"
)

const (
	DEFAULT_SAMPLE_RATE   = 48000
	DEFAULT_CHUNK_MS      = 50
	DEFAULT_CHUNK_SAMPLES = DEFAULT_SAMPLE_RATE * DEFAULT_CHUNK_MS / 1000 // 2400
)

// AudioChunk is one chunk of mono s16 PCM.  A chunk is never modified
// after it has been published to a queue; stages that change audio
// allocate a new sample slice.
type AudioChunk struct {
	Seq  uint64
	When time.Time
	Data []int16
}

func new_chunk(seq uint64, when time.Time, data []int16) *AudioChunk {
	return &AudioChunk{Seq: seq, When: when, Data: data}
}

// clamp16 clips an accumulator value into the s16 range.
func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

/*-------------------------------------------------------------------
 *
 * Name:	pcm_to_bytes / bytes_to_pcm
 *
 * Purpose:	Convert between sample slices and the little-endian
 *		byte layout used on the wire and by the sound hardware.
 *
 *--------------------------------------------------------------------*/

func pcm_to_bytes(pcm []int16) []byte {
	var out = make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func bytes_to_pcm(raw []byte) []int16 {
	var out = make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out
}

// scale_pcm applies a linear volume multiplier with clipping,
// returning a new slice.  A multiplier of 1.0 is an identity copy.
func scale_pcm(pcm []int16, mult float64) []int16 {
	var out = make([]int16, len(pcm))
	for i, s := range pcm {
		out[i] = clamp16(int32(float64(s) * mult))
	}
	return out
}
