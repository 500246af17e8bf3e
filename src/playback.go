package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	File and announcement playback sources.
 *
 * Description: Both are synthetic generators: queue a WAV file (or a
 *		raw PCM buffer from the announcement producer) and the
 *		tick loop pulls it out one chunk at a time.  Playback
 *		sources bypass signal detection - they are active
 *		exactly while material is queued.
 *
 *		Only 16 bit PCM WAV is accepted, mono or stereo (the
 *		latter is downmixed), and the sample rate must match
 *		the engine's.  Resampling announcements is the
 *		announcement producer's problem, not the mixer's.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

type playback_generator struct {
	mu      sync.Mutex
	pendBuf []int16
}

func new_playback_generator() *playback_generator {
	return &playback_generator{}
}

// queue_pcm appends raw samples, e.g. a synthesized announcement.
func (g *playback_generator) queue_pcm(pcm []int16) {
	g.mu.Lock()
	g.pendBuf = append(g.pendBuf, pcm...)
	g.mu.Unlock()
}

// queue_file loads a WAV file and appends its samples.
func (g *playback_generator) queue_file(path string, sampleRate int) error {
	var pcm, err = wav_read_s16(path, sampleRate)
	if err != nil {
		return err
	}
	g.queue_pcm(pcm)
	return nil
}

// clear discards anything still pending, for an operator abort.
func (g *playback_generator) clear() {
	g.mu.Lock()
	g.pendBuf = nil
	g.mu.Unlock()
}

func (g *playback_generator) next_chunk(n int) ([]int16, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.pendBuf) == 0 {
		return nil, false
	}

	var pcm = make([]int16, n)
	var copied = copy(pcm, g.pendBuf)
	if copied >= len(g.pendBuf) {
		g.pendBuf = nil
	} else {
		g.pendBuf = g.pendBuf[copied:]
	}
	return pcm, true
}

func (g *playback_generator) pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pendBuf) > 0
}

/*-------------------------------------------------------------------
 *
 * Name:	wav_read_s16
 *
 * Purpose:	Minimal RIFF/WAVE reader.
 *
 * Description:	Walks the chunk list for fmt and data, insists on
 *		16 bit PCM at the engine sample rate.  Stereo is
 *		averaged down to mono.
 *
 *--------------------------------------------------------------------*/

func wav_read_s16(path string, wantRate int) ([]int16, error) {
	var raw, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s is not a WAV file", path)
	}

	var channels, bits, rate int
	var data []byte

	var off = 12
	for off+8 <= len(raw) {
		var id = string(raw[off : off+4])
		var size = int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		var body = off + 8
		if body+size > len(raw) {
			break
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%s: malformed fmt chunk", path)
			}
			var format = int(binary.LittleEndian.Uint16(raw[body:]))
			if format != 1 { // PCM
				return nil, fmt.Errorf("%s: only PCM WAV is supported (format %d)", path, format)
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2:]))
			rate = int(binary.LittleEndian.Uint32(raw[body+4:]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14:]))
		case "data":
			data = raw[body : body+size]
		}

		// Chunks are word aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if data == nil {
		return nil, fmt.Errorf("%s: no data chunk", path)
	}
	if bits != 16 {
		return nil, fmt.Errorf("%s: %d bit samples, want 16", path, bits)
	}
	if rate != wantRate {
		return nil, fmt.Errorf("%s: sample rate %d, want %d", path, rate, wantRate)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%s: %d channels, want mono or stereo", path, channels)
	}

	var samples = bytes_to_pcm(data)
	if channels == 1 {
		return samples, nil
	}

	// Downmix stereo.
	var mono = make([]int16, len(samples)/2)
	for i := range mono {
		mono[i] = int16((int32(samples[i*2]) + int32(samples[i*2+1])) / 2)
	}
	return mono, nil
}
