package editor

import (
	"fmt"
)

type (
	SourceKind      string
	EffectKind      string
	AudioEffectKind string
	ZoomDirection   string
	ZoomCenter      string
)

const (
	SourceOriginal SourceKind = "original"
	SourceEdit     SourceKind = "edit"
	SourceAsset    SourceKind = "asset"

	EffectGrayscale EffectKind = "blackAndWhite"
	EffectVintage   EffectKind = "vintage"
	EffectGlitch    EffectKind = "glitch"
	EffectVignette  EffectKind = "vignette"
	EffectBlur      EffectKind = "blur"
	EffectZoom      EffectKind = "zoom"
	EffectChromaKey EffectKind = "chromaKey"

	AudioNormalize      AudioEffectKind = "normalize"
	AudioFade           AudioEffectKind = "fadeInOut"
	AudioEqualizer      AudioEffectKind = "equalizer"
	AudioReverb         AudioEffectKind = "reverb"
	AudioCompression    AudioEffectKind = "compression"
	AudioNoiseReduction AudioEffectKind = "noise_reduction"
	AudioPitch          AudioEffectKind = "pitch"
	AudioTempo          AudioEffectKind = "tempo"

	ZoomIn  ZoomDirection = "in"
	ZoomOut ZoomDirection = "out"

	CenterMiddle ZoomCenter = "center"
	CenterTop    ZoomCenter = "top"
	CenterBottom ZoomCenter = "bottom"
	CenterLeft   ZoomCenter = "left"
	CenterRight  ZoomCenter = "right"
)

type (
	// Source identifies the video an edit is applied to. The kind is always
	// given explicitly: an 'original' source is a downloaded reel video, an
	// 'asset' source is an uploaded or downloaded media asset, and an 'edit'
	// source is the output of a previous edit.
	Source struct {
		Kind SourceKind `json:"kind" validate:"required,oneof=original edit asset"`
		ID   int64      `json:"id" validate:"required,gt=0"`
	}

	// Request is a single edit of a source video, attributed to a page.
	Request struct {
		Source Source `json:"source"`
		PageID int64  `json:"pageId" validate:"required,gt=0"`
		Params Params `json:"params"`
	}

	// Params describes every transformation an edit applies. All fields are
	// optional; an edit with no params simply re-encodes the source.
	Params struct {
		Trim         *TrimWindow   `json:"trim"`
		Crop         *CropRect     `json:"crop"`
		TextOverlays []TextOverlay `json:"textOverlays" validate:"dive"`
		Effect       *VisualEffect `json:"effect"`
		AudioEffects []AudioEffect `json:"audioEffects" validate:"dive"`
	}

	TrimWindow struct {
		Start *float64 `json:"start" validate:"omitempty,gte=0"`
		End   *float64 `json:"end" validate:"omitempty,gt=0"`
	}

	CropRect struct {
		Width  *int `json:"width" validate:"omitempty,gt=0"`
		Height *int `json:"height" validate:"omitempty,gt=0"`
		X      int  `json:"x" validate:"gte=0"`
		Y      int  `json:"y" validate:"gte=0"`
	}

	// TextOverlay is drawn between its start and end times. X and Y are
	// percentages of the free space in the frame, and are centred if absent.
	TextOverlay struct {
		Text      string   `json:"text" validate:"required"`
		StartTime *float64 `json:"startTime" validate:"omitempty,gte=0"`
		EndTime   *float64 `json:"endTime" validate:"omitempty,gt=0"`
		X         *float64 `json:"x" validate:"omitempty,gte=0,lte=100"`
		Y         *float64 `json:"y" validate:"omitempty,gte=0,lte=100"`
		FontSize  int      `json:"fontSize" validate:"omitempty,gt=0,lte=500"`
		Color     string   `json:"color" validate:"omitempty,hexcolor"`
		BgColor   string   `json:"bgColor" validate:"omitempty,hexcolor"`
		BgOpacity *int     `json:"bgOpacity" validate:"omitempty,gte=0,lte=100"`
	}

	VisualEffect struct {
		Kind   EffectKind    `json:"kind" validate:"required,oneof=blackAndWhite vintage glitch vignette blur zoom chromaKey"`
		Zoom   *ZoomParams   `json:"zoom,omitempty"`
		Chroma *ChromaParams `json:"chroma,omitempty"`
	}

	ZoomParams struct {
		StartTime float64       `json:"startTime" validate:"gte=0"`
		Duration  float64       `json:"duration" validate:"gte=0"`
		Scale     float64       `json:"scale" validate:"omitempty,gt=1,lte=10"`
		Direction ZoomDirection `json:"direction" validate:"omitempty,oneof=in out"`
		Center    ZoomCenter    `json:"center" validate:"omitempty,oneof=center top bottom left right"`
	}

	ChromaParams struct {
		Color      string  `json:"color" validate:"omitempty,hexcolor"`
		Similarity float64 `json:"similarity" validate:"gte=0,lte=1"`
		Blend      float64 `json:"blend" validate:"gte=0,lte=1"`
	}

	// AudioEffect is a single stage of the audio chain. The params are
	// decoded according to the kind of the effect.
	AudioEffect struct {
		Kind   AudioEffectKind `json:"kind" validate:"required,oneof=normalize fadeInOut equalizer reverb compression noise_reduction pitch tempo"`
		Params map[string]any  `json:"params"`
	}
)

// normalized returns the params as they will be recorded against the
// edit: the trim window is resolved against the source duration, a crop
// missing either dimension is dropped, and the lists are never nil.
func (params Params) normalized(sourceDuration float64) (Params, error) {
	out := Params{
		TextOverlays: params.TextOverlays,
		Effect:       params.Effect,
		AudioEffects: params.AudioEffects,
	}
	if out.TextOverlays == nil {
		out.TextOverlays = []TextOverlay{}
	}
	if out.AudioEffects == nil {
		out.AudioEffects = []AudioEffect{}
	}

	if trim := params.Trim; trim != nil && (trim.Start != nil || trim.End != nil) {
		start, end := 0.0, sourceDuration
		if trim.Start != nil {
			start = *trim.Start
		}
		if trim.End != nil && *trim.End < sourceDuration {
			end = *trim.End
		}

		if end <= start {
			return out, fmt.Errorf("%w: trim window %.2fs-%.2fs is empty for a %.2fs source", ErrInvalidParams, start, end, sourceDuration)
		}

		out.Trim = &TrimWindow{Start: &start, End: &end}
	}

	if crop := params.Crop; crop != nil && crop.Width != nil && crop.Height != nil {
		w, h := *crop.Width, *crop.Height
		out.Crop = &CropRect{Width: &w, Height: &h, X: crop.X, Y: crop.Y}
	}

	if effect := params.Effect; effect != nil {
		resolved := *effect
		switch effect.Kind {
		case EffectZoom:
			resolved.Zoom = effect.Zoom.withDefaults()
			resolved.Chroma = nil
		case EffectChromaKey:
			resolved.Chroma = effect.Chroma.withDefaults()
			resolved.Zoom = nil
		default:
			resolved.Zoom, resolved.Chroma = nil, nil
		}
		out.Effect = &resolved
	}

	return out, nil
}

// duration returns the length of the output once the trim (if any) is applied.
func (params Params) duration(sourceDuration float64) float64 {
	if params.Trim == nil || params.Trim.Start == nil || params.Trim.End == nil {
		return sourceDuration
	}

	return *params.Trim.End - *params.Trim.Start
}

// timeline describes where the output sits on the source. The trim is
// applied as an output seek, so filters still see source timestamps and
// every time given relative to the output must be shifted by the offset.
type timeline struct {
	offset   float64
	duration float64
}

func (params Params) timeline(sourceDuration float64) timeline {
	tl := timeline{duration: params.duration(sourceDuration)}
	if params.Trim != nil && params.Trim.Start != nil {
		tl.offset = *params.Trim.Start
	}

	return tl
}

// at converts a time on the output to the source.
func (tl timeline) at(outputTime float64) float64 { return tl.offset + outputTime }

func (tl timeline) end() float64 { return tl.offset + tl.duration }

func (zoom *ZoomParams) withDefaults() *ZoomParams {
	out := ZoomParams{Duration: 2, Scale: 1.5, Direction: ZoomIn, Center: CenterMiddle}
	if zoom == nil {
		return &out
	}

	out.StartTime = zoom.StartTime
	if zoom.Duration > 0 {
		out.Duration = zoom.Duration
	}
	if zoom.Scale > 1 {
		out.Scale = zoom.Scale
	}
	if zoom.Direction != "" {
		out.Direction = zoom.Direction
	}
	if zoom.Center != "" {
		out.Center = zoom.Center
	}

	return &out
}

func (chroma *ChromaParams) withDefaults() *ChromaParams {
	out := ChromaParams{Color: "#00FF00", Similarity: 0.3, Blend: 0.1}
	if chroma == nil {
		return &out
	}

	if chroma.Color != "" {
		out.Color = chroma.Color
	}
	if chroma.Similarity > 0 {
		out.Similarity = chroma.Similarity
	}
	if chroma.Blend > 0 {
		out.Blend = chroma.Blend
	}

	return &out
}
