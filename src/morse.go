package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Generate audio for morse code.
 *
 * Description: Text goes in, chunks of tone come out.  Used for the
 *		periodic station identification and for the roger
 *		beep.  Timing follows the standard: a dit is one time
 *		unit, a dah three, one unit between elements, three
 *		between characters, and 1200/wpm milliseconds per
 *		unit.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"sync"
	"unicode"
)

const (
	MORSE_TONE_HZ   = 800
	DEFAULT_WPM     = 20
	MORSE_AMPLITUDE = 0.7 // of full scale
	TICKS_PER_CYCLE = 256.0 * 256.0 * 256.0 * 256.0
	ROGER_BEEP_HZ   = 1000
	ROGER_BEEP_MS   = 120
)

func TIME_UNITS_TO_MS(tu int, wpm int) float64 {
	return float64(tu) * 1200.0 / float64(wpm)
}

type morse_s struct {
	ch  rune
	enc string
}

var MORSE = []morse_s{
	{'A', ".-"},
	{'B', "-..."},
	{'C', "-.-."},
	{'D', "-.."},
	{'E', "."},
	{'F', "..-."},
	{'G', "--."},
	{'H', "...."},
	{'I', ".."},
	{'J', ".---"},
	{'K', "-.-"},
	{'L', ".-.."},
	{'M', "--"},
	{'N', "-."},
	{'O', "---"},
	{'P', ".--."},
	{'Q', "--.-"},
	{'R', ".-."},
	{'S', "..."},
	{'T', "-"},
	{'U', "..-"},
	{'V', "...-"},
	{'W', ".--"},
	{'X', "-..-"},
	{'Y', "-.--"},
	{'Z', "--.."},
	{'1', ".----"},
	{'2', "..---"},
	{'3', "...--"},
	{'4', "....-"},
	{'5', "....."},
	{'6', "-...."},
	{'7', "--..."},
	{'8', "---.."},
	{'9', "----."},
	{'0', "-----"},
	{'.', ".-.-.-"},
	{',', "--..--"},
	{'?', "..--.."},
	{'/', "-..-."},
	{'=', "-...-"},
	{'-', "-....-"},
	{':', "---..."},
	{';', "-.-.-."},
	{'+', ".-.-."},
	{'@', ".--.-."},
}

func morse_lookup(ch rune) int {
	ch = unicode.ToUpper(ch)
	for i := range MORSE {
		if MORSE[i].ch == ch {
			return i
		}
	}
	return -1
}

/*-------------------------------------------------------------------
 *
 * Name:	tone_synth
 *
 * Purpose:	Sine table phase accumulator synthesis.
 *
 * Description:	A 256 entry sine table indexed by the top bits of a
 *		32 bit phase accumulator.  Same trick the packet tone
 *		generator uses; plenty for an 800 Hz sidetone.
 *
 *--------------------------------------------------------------------*/

type tone_synth struct {
	table      [256]int16
	phase      uint32
	sampleRate int
}

func new_tone_synth(sampleRate int, amplitude float64) *tone_synth {
	var s = &tone_synth{sampleRate: sampleRate}
	for j := range s.table {
		var a = float64(j) / 256.0 * (2 * math.Pi)
		s.table[j] = int16(math.Sin(a) * 32767.0 * amplitude)
	}
	return s
}

// tone appends n milliseconds of toneHz to buf.
func (s *tone_synth) tone(buf []int16, ms float64, toneHz int) []int16 {
	var step = uint32(float64(toneHz)*TICKS_PER_CYCLE/float64(s.sampleRate) + 0.5)
	var nsamples = int(ms*float64(s.sampleRate)/1000.0 + 0.5)

	for j := 0; j < nsamples; j++ {
		s.phase += step
		buf = append(buf, s.table[(s.phase>>24)&0xff])
	}
	return buf
}

// quiet appends n milliseconds of silence to buf.
func (s *tone_synth) quiet(buf []int16, ms float64) []int16 {
	var nsamples = int(ms*float64(s.sampleRate)/1000.0 + 0.5)
	return append(buf, make([]int16, nsamples)...)
}

/*-------------------------------------------------------------------
 *
 * Name:	morse_render
 *
 * Purpose:	Given a string, generate appropriate lengths of tone
 *		and silence.
 *
 * Returns:	The whole transmission as one sample buffer.
 *
 *--------------------------------------------------------------------*/

func morse_render(synth *tone_synth, str string, wpm int, toneHz int) []int16 {
	if wpm <= 0 {
		wpm = DEFAULT_WPM
	}
	if toneHz <= 0 {
		toneHz = MORSE_TONE_HZ
	}

	var buf []int16

	for strIdx, ch := range str {
		if ch == ' ' {
			// Word gap: 7 units total; the preceding character
			// gap already contributed 3.
			buf = synth.quiet(buf, TIME_UNITS_TO_MS(4, wpm))
			continue
		}

		var i = morse_lookup(ch)
		if i < 0 {
			buf = synth.quiet(buf, TIME_UNITS_TO_MS(1, wpm))
			continue
		}

		var enc = MORSE[i].enc
		for encIdx, e := range enc {
			if e == '.' {
				buf = synth.tone(buf, TIME_UNITS_TO_MS(1, wpm), toneHz)
			} else {
				buf = synth.tone(buf, TIME_UNITS_TO_MS(3, wpm), toneHz)
			}
			if encIdx != len(enc)-1 {
				buf = synth.quiet(buf, TIME_UNITS_TO_MS(1, wpm))
			}
		}

		if strIdx != len(str)-1 {
			buf = synth.quiet(buf, TIME_UNITS_TO_MS(3, wpm))
		}
	}

	return buf
}

/*-------------------------------------------------------------------
 *
 * Name:	morse_generator
 *
 * Purpose:	The Morse source: a synthetic chunk generator fed by
 *		queued text.
 *
 * Description:	queue_text may be called from the command handler or
 *		the station ID timer; next_chunk only from the tick
 *		loop.  A mutex over the pending buffer keeps that
 *		honest.
 *
 *--------------------------------------------------------------------*/

type morse_generator struct {
	mu      sync.Mutex
	pendBuf []int16
	synth   *tone_synth
	wpm     int
	toneHz  int
}

func new_morse_generator(sampleRate int, wpm int, toneHz int) *morse_generator {
	return &morse_generator{
		synth:  new_tone_synth(sampleRate, MORSE_AMPLITUDE),
		wpm:    wpm,
		toneHz: toneHz,
	}
}

func (g *morse_generator) queue_text(text string) {
	var buf = morse_render(g.synth, text, g.wpm, g.toneHz)

	g.mu.Lock()
	g.pendBuf = append(g.pendBuf, buf...)
	g.mu.Unlock()
}

// queue_beep queues the roger beep: a short single tone.
func (g *morse_generator) queue_beep() {
	var buf = g.synth.tone(nil, ROGER_BEEP_MS, ROGER_BEEP_HZ)

	g.mu.Lock()
	g.pendBuf = append(g.pendBuf, buf...)
	g.mu.Unlock()
}

func (g *morse_generator) next_chunk(n int) ([]int16, bool) {
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

func (g *morse_generator) pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pendBuf) > 0
}
