package editor

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultFontSize  = 24
	defaultFontColor = "white"
	defaultBoxColor  = "0x000000"
	defaultOpacity   = 50
	boxBorderWidth   = 5

	vintageCurves = `curves=r='0/0 0.5/0.4 1/0.9':g='0/0 0.5/0.4 1/0.8':b='0/0 0.5/0.3 1/0.7',eq=brightness=0.1:contrast=1.1:saturation=0.8`
)

// stage is one link of the video filter chain. It is given the label of
// its input, and the label its output should carry; the output label of
// the final stage is empty so that ffmpeg maps it automatically.
type stage func(in string, out string, index int) string

// buildFilterGraph composes the crop, visual effect and text overlays of
// the params in to a single filter_complex graph, in that order. An empty
// string is returned if the params contain no video filters. Times in the
// params are relative to the output and are placed on the timeline given.
func buildFilterGraph(params Params, tl timeline, fontFile string) string {
	stages := make([]stage, 0, 3)
	if params.Crop != nil {
		stages = append(stages, cropStage(params.Crop))
	}
	if params.Effect != nil {
		stages = append(stages, effectStage(params.Effect, tl))
	}
	if len(params.TextOverlays) > 0 {
		stages = append(stages, textStage(params.TextOverlays, tl, fontFile))
	}

	if len(stages) == 0 {
		return ""
	}

	parts := make([]string, len(stages))
	in := "[0:v]"
	for i, s := range stages {
		out := ""
		if i < len(stages)-1 {
			out = fmt.Sprintf("[v%d]", i+1)
		}

		parts[i] = s(in, out, i+1)
		in = out
	}

	return strings.Join(parts, ";")
}

func simpleStage(filter string) stage {
	return func(in string, out string, _ int) string { return in + filter + out }
}

func cropStage(crop *CropRect) stage {
	return simpleStage(fmt.Sprintf("crop=%d:%d:%d:%d", *crop.Width, *crop.Height, crop.X, crop.Y))
}

func effectStage(effect *VisualEffect, tl timeline) stage {
	switch effect.Kind {
	case EffectGrayscale:
		return simpleStage("hue=s=0")
	case EffectVintage:
		return simpleStage(vintageCurves)
	case EffectVignette:
		return simpleStage("vignette=PI/4")
	case EffectBlur:
		return simpleStage("boxblur=2:1")
	case EffectChromaKey:
		chroma := effect.Chroma.withDefaults()
		return simpleStage(fmt.Sprintf("chromakey=color=%s:similarity=%s:blend=%s", ffmpegColor(chroma.Color), num(chroma.Similarity), num(chroma.Blend)))
	case EffectGlitch:
		return glitchStage
	case EffectZoom:
		return zoomStage(effect.Zoom.withDefaults(), tl)
	}

	return simpleStage("null")
}

// glitchStage blends a colour-shifted copy of the stream with a
// curve-adjusted copy, choosing between them randomly per pixel.
func glitchStage(in string, out string, index int) string {
	a, b := fmt.Sprintf("[g%da]", index), fmt.Sprintf("[g%db]", index)
	a1, b1 := fmt.Sprintf("[g%da1]", index), fmt.Sprintf("[g%db1]", index)

	return in + "split=2" + a + b + ";" +
		a + "curves=r='0/0.1 0.3/0.35 0.5/0.5 0.7/0.65 1/0.9'" + a1 + ";" +
		b + "hue=h=20" + b1 + ";" +
		a1 + b1 + "blend=all_expr='if(lt(random(1),0.25),A,B)'" + out
}

// zoomStage splits the stream in to the segments before, during and after
// the zoom window and concatenates them again. Zoomed segments are scaled
// up and then cropped back to the source dimensions so that every segment
// of the concatenation has the same frame size. Zooming 'in' zooms the
// window; zooming 'out' zooms everything except the window.
func zoomStage(zoom *ZoomParams, tl timeline) stage {
	return func(in string, out string, index int) string {
		scaled := fmt.Sprintf("scale=iw*%[1]s:ih*%[1]s,crop=iw/%[1]s:ih/%[1]s:%[2]s", num(zoom.Scale), zoomOffset(zoom.Center, zoom.Scale))
		startsAt := tl.at(zoom.StartTime)
		windowStart, windowEnd := num(startsAt), num(startsAt+zoom.Duration)

		type segment struct {
			name   string
			trim   string
			zoomed bool
		}

		segments := make([]segment, 0, 3)
		if startsAt > 0 {
			segments = append(segments, segment{"before", "trim=start=0:end=" + windowStart, zoom.Direction == ZoomOut})
		}
		segments = append(segments,
			segment{"zoom", fmt.Sprintf("trim=start=%s:duration=%s", windowStart, num(zoom.Duration)), zoom.Direction != ZoomOut},
			segment{"after", "trim=start=" + windowEnd, zoom.Direction == ZoomOut},
		)

		splitLabels := make([]string, len(segments))
		outLabels := make([]string, len(segments))
		for i, seg := range segments {
			splitLabels[i] = fmt.Sprintf("[z%d_%s]", index, seg.name)
			outLabels[i] = fmt.Sprintf("[z%d_%s_out]", index, seg.name)
		}

		parts := []string{fmt.Sprintf("%ssplit=%d%s", in, len(segments), strings.Join(splitLabels, ""))}
		for i, seg := range segments {
			chain := seg.trim + ",setpts=PTS-STARTPTS"
			if seg.zoomed {
				chain += "," + scaled
			}
			parts = append(parts, splitLabels[i]+chain+outLabels[i])
		}

		parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=0%s", strings.Join(outLabels, ""), len(segments), out))
		return strings.Join(parts, ";")
	}
}

// zoomOffset positions the crop of a zoomed frame so that the configured
// centre of the source remains in view.
func zoomOffset(center ZoomCenter, scale float64) string {
	s := num(scale)
	midX := fmt.Sprintf("(iw-iw/%s)/2", s)
	midY := fmt.Sprintf("(ih-ih/%s)/2", s)

	switch center {
	case CenterTop:
		return midX + ":0"
	case CenterBottom:
		return fmt.Sprintf("%s:ih-ih/%s", midX, s)
	case CenterLeft:
		return "0:" + midY
	case CenterRight:
		return fmt.Sprintf("iw-iw/%s:%s", s, midY)
	}

	return midX + ":" + midY
}

func textStage(overlays []TextOverlay, tl timeline, fontFile string) stage {
	filters := make([]string, len(overlays))
	for i, overlay := range overlays {
		filters[i] = drawText(overlay, tl, fontFile)
	}

	return simpleStage(strings.Join(filters, ","))
}

func drawText(overlay TextOverlay, tl timeline, fontFile string) string {
	x, y := "(w-text_w)/2", "(h-text_h)/2"
	if overlay.X != nil {
		x = fmt.Sprintf("(w-text_w)*%s/100", num(*overlay.X))
	}
	if overlay.Y != nil {
		y = fmt.Sprintf("(h-text_h)*%s/100", num(*overlay.Y))
	}

	fontSize := overlay.FontSize
	if fontSize <= 0 {
		fontSize = defaultFontSize
	}

	fontColor := defaultFontColor
	if overlay.Color != "" {
		fontColor = ffmpegColor(overlay.Color)
	}

	boxColor := defaultBoxColor
	if overlay.BgColor != "" {
		boxColor = ffmpegColor(overlay.BgColor)
	}

	opacity := defaultOpacity
	if overlay.BgOpacity != nil {
		opacity = *overlay.BgOpacity
	}

	start, end := tl.at(0), tl.end()
	if overlay.StartTime != nil {
		start = tl.at(*overlay.StartTime)
	}
	if overlay.EndTime != nil {
		end = tl.at(*overlay.EndTime)
	}

	options := []string{
		fmt.Sprintf("drawtext=text='%s'", escapeText(overlay.Text)),
		"fontcolor=" + fontColor,
		fmt.Sprintf("fontsize=%d", fontSize),
		"x=" + x,
		"y=" + y,
	}
	if fontFile != "" {
		options = append(options, fmt.Sprintf("fontfile='%s'", escapeText(fontFile)))
	}
	options = append(options,
		"box=1",
		fmt.Sprintf("boxcolor=%s@%s", boxColor, num(float64(opacity)/100)),
		fmt.Sprintf("boxborderw=%d", boxBorderWidth),
		fmt.Sprintf("enable='between(t,%s,%s)'", num(start), num(end)),
	)

	return strings.Join(options, ":")
}

// escapeText closes the quoted string, emits an escaped quote, and
// re-opens the quoted string for each single quote in the text.
func escapeText(text string) string {
	return strings.ReplaceAll(text, "'", `'\''`)
}

// ffmpegColor converts a '#rrggbb' colour in to ffmpeg's '0xrrggbb' form.
func ffmpegColor(color string) string {
	return "0x" + strings.ToLower(strings.TrimPrefix(color, "#"))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
