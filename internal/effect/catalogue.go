package effect

import (
	"fmt"
	"strings"
	"time"

	"github.com/makeasinger/fxgateway/internal/model"
)

var (
	videoDurations = []string{"5", "10"}
	videoQualities = []string{"standard", "pro"}
)

const negativeVideoPrompt = "blur, distortion, extra limbs, deformed faces, low quality, watermark"

var animeStylePrompts = map[string]string{
	"ghibli":    "Studio Ghibli style anime illustration, soft watercolor backgrounds, warm hand-painted lighting",
	"shinkai":   "Makoto Shinkai style anime art, luminous skies, hyper-detailed light rays, cinematic color grading",
	"jojo":      "JoJo's Bizarre Adventure style manga art, bold ink lines, dramatic poses, intense shading",
	"chibi":     "cute chibi anime character, oversized head, big sparkling eyes, pastel colors",
	"cyberpunk": "cyberpunk anime style, neon city lights, high contrast, futuristic outfit details",
	"webtoon":   "Korean webtoon style digital illustration, clean line art, flat cel shading",
}

var cartoonStylePrompts = map[string]string{
	"pixar":    "3D Pixar-style animated character portrait, expressive eyes, soft subsurface lighting",
	"disney":   "classic Disney animation style portrait, smooth lines, vibrant storybook colors",
	"simpsons": "The Simpsons cartoon style portrait, yellow skin, thick outlines, flat colors",
	"comic":    "American comic book style portrait, halftone shading, bold ink outlines",
	"clay":     "claymation style portrait, handmade plasticine texture, stop-motion look",
}

var musclePrompts = map[string]string{
	"subtle":      "the person slowly flexes and their muscles become noticeably more defined",
	"athletic":    "the person flexes as their body transforms into a lean athletic physique with visible abs",
	"bodybuilder": "the person flexes dramatically as their muscles swell into a massive bodybuilder physique",
}

var squishPrompts = map[string]string{
	"squish":  "a giant pair of hands squishes the subject like soft dough, playful and elastic",
	"inflate": "the subject inflates like a balloon and floats gently upward",
	"melt":    "the subject slowly melts into a colorful glossy liquid puddle",
	"explode": "the subject bursts into a cloud of colorful confetti particles",
}

var selfieScenes = map[string]string{
	"red_carpet": "on a red carpet with paparazzi flashes in the background",
	"backstage":  "backstage at a concert with stage lights and equipment behind them",
	"street":     "on a busy city street, candid smartphone photo",
	"cafe":       "sitting together in a cozy cafe, warm ambient light",
}

// Catalogue returns every effect the gateway serves.
func Catalogue() []*Effect {
	return []*Effect{
		animeFilter(),
		coupleVideo("ai-kiss", "The two people lean towards each other and share a gentle romantic kiss, natural movement, cinematic lighting"),
		coupleVideo("ai-hug", "The two people step towards each other and share a warm heartfelt hug, natural movement, soft lighting"),
		muscleSurge(),
		aiSquish(),
		celebritySelfie(),
		faceSwap(),
		cartoonPortrait(),
	}
}

// DefaultRegistry returns a registry holding the full catalogue.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Catalogue()...)
	if err != nil {
		panic(err)
	}
	return r
}

func animeFilter() *Effect {
	return &Effect{
		Name:     "anime-filter",
		Endpoint: "fal-ai/flux/dev/image-to-image",
		Media:    model.MediaImage,
		Inputs:   []Input{{Name: "imageUrl", Required: true}},
		Options: []Option{
			{Name: "style", Allowed: styleList(animeStylePrompts, "ghibli", "shinkai", "jojo", "chibi", "cyberpunk", "webtoon"), Default: "ghibli"},
		},
		Ranges:     []Range{{Name: "strength", Min: 0.1, Max: 1, Default: 0.75}},
		ResultPath: "images.0.url",
		Retention:  2 * time.Hour,
		Prompt: func(p Params) string {
			return animeStylePrompts[p.String("style")] + ", keep the original composition and facial identity"
		},
		Payload: func(p Params, prompt string, sources map[string]string) map[string]any {
			return map[string]any{
				"image_url":             sources["imageUrl"],
				"prompt":                prompt,
				"strength":              p.Float("strength"),
				"num_images":            1,
				"enable_safety_checker": true,
			}
		},
	}
}

func coupleVideo(name, prompt string) *Effect {
	return &Effect{
		Name:     name,
		Endpoint: "fal-ai/kling-video/v1.6/{quality}/elements",
		Media:    model.MediaVideo,
		Inputs: []Input{
			{Name: "leftImageUrl", Required: true},
			{Name: "rightImageUrl", Required: true},
		},
		Options: []Option{
			{Name: "duration", Allowed: videoDurations, Default: "5"},
			{Name: "quality", Allowed: videoQualities, Default: "standard"},
		},
		ResultPath: "video.url",
		Retention:  24 * time.Hour,
		Prompt: func(Params) string {
			return prompt
		},
		Payload: func(p Params, prompt string, sources map[string]string) map[string]any {
			return map[string]any{
				"prompt":           prompt,
				"input_image_urls": []string{sources["leftImageUrl"], sources["rightImageUrl"]},
				"duration":         p.String("duration"),
				"aspect_ratio":     "9:16",
				"negative_prompt":  negativeVideoPrompt,
			}
		},
	}
}

func imageToVideo(p Params, prompt string, sources map[string]string) map[string]any {
	return map[string]any{
		"prompt":          prompt,
		"image_url":       sources["imageUrl"],
		"duration":        p.String("duration"),
		"negative_prompt": negativeVideoPrompt,
		"cfg_scale":       0.5,
	}
}

func muscleSurge() *Effect {
	return &Effect{
		Name:     "muscle-surge",
		Endpoint: "fal-ai/kling-video/v1.6/standard/image-to-video",
		Media:    model.MediaVideo,
		Inputs:   []Input{{Name: "imageUrl", Required: true}},
		Options: []Option{
			{Name: "intensity", Allowed: []string{"subtle", "athletic", "bodybuilder"}, Default: "athletic"},
			{Name: "duration", Allowed: videoDurations, Default: "5"},
		},
		ResultPath: "video.url",
		Retention:  24 * time.Hour,
		Prompt: func(p Params) string {
			return musclePrompts[p.String("intensity")] + ", camera stays fixed, realistic skin and lighting"
		},
		Payload: imageToVideo,
	}
}

func aiSquish() *Effect {
	return &Effect{
		Name:     "ai-squish",
		Endpoint: "fal-ai/kling-video/v1.6/standard/image-to-video",
		Media:    model.MediaVideo,
		Inputs:   []Input{{Name: "imageUrl", Required: true}},
		Options: []Option{
			{Name: "mode", Allowed: []string{"squish", "inflate", "melt", "explode"}, Default: "squish"},
			{Name: "duration", Allowed: videoDurations, Default: "5"},
		},
		ResultPath: "video.url",
		Retention:  12 * time.Hour,
		Prompt: func(p Params) string {
			return squishPrompts[p.String("mode")]
		},
		Payload: imageToVideo,
	}
}

func celebritySelfie() *Effect {
	return &Effect{
		Name:          "celebrity-selfie",
		Endpoint:      "fal-ai/flux-pulid",
		Media:         model.MediaImage,
		Inputs:        []Input{{Name: "imageUrl", Required: true}},
		Options:       []Option{{Name: "scene", Allowed: []string{"red_carpet", "backstage", "street", "cafe"}, Default: "red_carpet"}},
		Texts:         []Text{{Name: "celebrity", Required: true, MaxLength: 80}},
		InlineSources: true,
		ResultPath:    "images.0.url",
		Retention:     6 * time.Hour,
		Prompt: func(p Params) string {
			return fmt.Sprintf("A realistic selfie of this person standing next to %s %s, both smiling at the camera, natural smartphone photo",
				p.String("celebrity"), selfieScenes[p.String("scene")])
		},
		Payload: func(p Params, prompt string, sources map[string]string) map[string]any {
			return map[string]any{
				"reference_image_url": sources["imageUrl"],
				"prompt":              prompt,
				"image_size":          "portrait_4_3",
				"num_inference_steps": 20,
			}
		},
	}
}

func faceSwap() *Effect {
	return &Effect{
		Name:     "face-swap",
		Endpoint: "fal-ai/face-swap",
		Media:    model.MediaImage,
		Inputs: []Input{
			{Name: "faceImageUrl", Required: true},
			{Name: "targetImageUrl", Required: true},
		},
		Options:       []Option{{Name: "quality", Allowed: []string{"standard", "hd"}, Default: "standard"}},
		InlineSources: true,
		ResultPath:    "image.url",
		Retention:     6 * time.Hour,
		Payload: func(p Params, _ string, sources map[string]string) map[string]any {
			return map[string]any{
				"base_image_url": sources["targetImageUrl"],
				"swap_image_url": sources["faceImageUrl"],
				"enhance":        p.String("quality") == "hd",
			}
		},
	}
}

func cartoonPortrait() *Effect {
	return &Effect{
		Name:     "cartoon-portrait",
		Endpoint: "fal-ai/flux/dev/image-to-image",
		Media:    model.MediaImage,
		Inputs:   []Input{{Name: "imageUrl", Required: true}},
		Options: []Option{
			{Name: "style", Allowed: styleList(cartoonStylePrompts, "pixar", "disney", "simpsons", "comic", "clay"), Default: "pixar"},
		},
		Ranges:     []Range{{Name: "guidance", Min: 1, Max: 20, Default: 3.5}},
		ResultPath: "images.0.url",
		Retention:  2 * time.Hour,
		Prompt: func(p Params) string {
			return cartoonStylePrompts[p.String("style")]
		},
		Payload: func(p Params, prompt string, sources map[string]string) map[string]any {
			return map[string]any{
				"image_url":      sources["imageUrl"],
				"prompt":         prompt,
				"guidance_scale": p.Float("guidance"),
				"strength":       0.85,
				"num_images":     1,
			}
		},
	}
}

// styleList returns order, panicking if it disagrees with the prompt table.
func styleList(prompts map[string]string, order ...string) []string {
	if len(order) != len(prompts) {
		panic(fmt.Sprintf("style list %s does not match prompt table", strings.Join(order, ",")))
	}
	for _, name := range order {
		if _, ok := prompts[name]; !ok {
			panic(fmt.Sprintf("style %q has no prompt", name))
		}
	}
	return order
}
