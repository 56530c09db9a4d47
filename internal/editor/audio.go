package editor

import (
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type reverbRoom struct {
	delays string
	decays string
}

var reverbRooms = map[string]reverbRoom{
	"small":     {"50|100", "0.3|0.2"},
	"medium":    {"100|200", "0.4|0.3"},
	"large":     {"200|400", "0.6|0.4"},
	"cathedral": {"400|800", "0.8|0.6"},
}

type (
	normalizeParams struct {
		Level float64 `mapstructure:"level"`
	}

	fadeParams struct {
		FadeIn  float64 `mapstructure:"fadeIn"`
		FadeOut float64 `mapstructure:"fadeOut"`
	}

	equalizerParams struct {
		Low  float64 `mapstructure:"low"`
		Mid  float64 `mapstructure:"mid"`
		High float64 `mapstructure:"high"`
	}

	reverbParams struct {
		Mix  float64 `mapstructure:"mix"`
		Room string  `mapstructure:"room"`
	}

	compressionParams struct {
		Threshold float64 `mapstructure:"threshold"`
		Ratio     float64 `mapstructure:"ratio"`
	}

	noiseReductionParams struct {
		Strength float64 `mapstructure:"strength"`
	}

	// Shift is accepted as an alias of Semitones.
	pitchParams struct {
		Semitones float64 `mapstructure:"semitones"`
		Shift     float64 `mapstructure:"shift"`
	}

	tempoParams struct {
		Factor float64 `mapstructure:"factor"`
	}
)

// AudioChain accumulates ffmpeg audio filters in the order they are
// added. The String form of the chain is suitable for use with '-af'.
type AudioChain struct {
	filters []string
}

// NewAudioChain builds a chain from the audio effects provided, in order.
// The output begins at outputStart on the source timeline and lasts for
// outputDuration; both are needed to place fades.
func NewAudioChain(effects []AudioEffect, outputStart float64, outputDuration float64) (*AudioChain, error) {
	chain := &AudioChain{}
	for i, effect := range effects {
		if err := chain.apply(effect, outputStart, outputDuration); err != nil {
			return nil, fmt.Errorf("%w: audio effect %d (%s): %w", ErrInvalidParams, i, effect.Kind, err)
		}
	}

	return chain, nil
}

func (chain *AudioChain) apply(effect AudioEffect, outputStart float64, outputDuration float64) error {
	switch effect.Kind {
	case AudioNormalize:
		p := normalizeParams{Level: -14}
		if err := decodeParams(effect.Params, &p); err != nil {
			return err
		}
		chain.Normalize(p.Level)
	case AudioFade:
		p := fadeParams{}
		if err := decodeParams(effect.Params, &p); err != nil {
			return err
		}
		chain.Fade(p.FadeIn, p.FadeOut, outputStart, outputDuration)
	case AudioEqualizer:
		p := equalizerParams{}
		if err := decodeParams(effect.Params, &p); err != nil {
			return err
		}
		chain.Equalizer(p.Low, p.Mid, p.High)
	case AudioReverb:
		p := reverbParams{Mix: 30, Room: "medium"}
		if err := decodeParams(effect.Params, &p); err != nil {
			return err
		}
		return chain.Reverb(p.Mix, p.Room)
	case AudioCompression:
		p := compressionParams{Threshold: -24, Ratio: 2}
		if err := decodeParams(effect.Params, &p); err != nil {
			return err
		}
		chain.Compress(p.Threshold, p.Ratio)
	case AudioNoiseReduction:
		p := noiseReductionParams{Strength: 50}
		if err := decodeParams(effect.Params, &p); err != nil {
			return err
		}
		chain.ReduceNoise(p.Strength)
	case AudioPitch:
		p := pitchParams{}
		if err := decodeParams(effect.Params, &p); err != nil {
			return err
		}
		if p.Semitones == 0 {
			p.Semitones = p.Shift
		}
		chain.PitchShift(p.Semitones)
	case AudioTempo:
		p := tempoParams{Factor: 1}
		if err := decodeParams(effect.Params, &p); err != nil {
			return err
		}
		return chain.Tempo(p.Factor)
	default:
		return fmt.Errorf("unknown audio effect kind %q", effect.Kind)
	}

	return nil
}

// decodeParams decodes the loosely typed params of an audio effect in to
// the target, which should already be populated with the defaults. Keys
// the target does not understand are rejected.
func decodeParams(params map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(params)
}

func (chain *AudioChain) Normalize(level float64) {
	chain.add(fmt.Sprintf("loudnorm=I=%s:TP=-1:LRA=11", num(level)))
}

// Fade adds a fade in from the start of the output and a fade out that
// ends with the output. A zero length skips that fade.
func (chain *AudioChain) Fade(fadeIn float64, fadeOut float64, outputStart float64, outputDuration float64) {
	if fadeIn > 0 {
		chain.add(fmt.Sprintf("afade=t=in:st=%s:d=%s", num(outputStart), num(fadeIn)))
	}
	if fadeOut > 0 {
		start := outputStart + math.Max(0, outputDuration-fadeOut)
		chain.add(fmt.Sprintf("afade=t=out:st=%s:d=%s", num(start), num(fadeOut)))
	}
}

func (chain *AudioChain) Equalizer(low float64, mid float64, high float64) {
	bands := []struct {
		frequency int
		gain      float64
	}{{100, low}, {1000, mid}, {10000, high}}

	for _, band := range bands {
		if band.gain != 0 {
			chain.add(fmt.Sprintf("equalizer=f=%d:t=h:w=200:g=%s", band.frequency, num(band.gain)))
		}
	}
}

// Reverb adds an echo for the room size, mixed in at the percentage given.
func (chain *AudioChain) Reverb(mix float64, room string) error {
	settings, ok := reverbRooms[room]
	if !ok {
		return fmt.Errorf("unknown reverb room %q", room)
	}

	chain.add(fmt.Sprintf("aecho=0.8:0.88:%s:%s", settings.delays, settings.decays))
	chain.add(fmt.Sprintf("volume=%s", num(1+mix/100)))
	return nil
}

func (chain *AudioChain) Compress(threshold float64, ratio float64) {
	chain.add(fmt.Sprintf("acompressor=threshold=%sdB:ratio=%s:attack=20:release=250", num(threshold), num(ratio)))
}

// ReduceNoise adds non-local means denoising. Strength is a percentage.
func (chain *AudioChain) ReduceNoise(strength float64) {
	chain.add(fmt.Sprintf("anlmdn=s=%s:p=0.95:r=0.5", num(strength/100)))
}

func (chain *AudioChain) PitchShift(semitones float64) {
	if semitones == 0 {
		return
	}

	chain.add(fmt.Sprintf("rubberband=pitch=%s", num(math.Pow(2, semitones/12))))
}

func (chain *AudioChain) Tempo(factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("tempo factor must be positive, got %s", num(factor))
	}
	if factor == 1 {
		return nil
	}

	chain.add(fmt.Sprintf("rubberband=tempo=%s", num(factor)))
	return nil
}

func (chain *AudioChain) add(filter string) {
	chain.filters = append(chain.filters, filter)
}

func (chain *AudioChain) Filters() []string { return chain.filters }

func (chain *AudioChain) Empty() bool { return len(chain.filters) == 0 }

func (chain *AudioChain) String() string {
	return strings.Join(chain.filters, ",")
}
