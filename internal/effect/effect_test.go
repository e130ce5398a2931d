package effect

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/fxgateway/internal/model"
)

func mustEffect(t *testing.T, name string) *Effect {
	t.Helper()
	e, err := DefaultRegistry().Get(name)
	require.NoError(t, err)
	return e
}

func TestValidate_InvalidURL(t *testing.T) {
	e := mustEffect(t, "anime-filter")

	_, err := e.Validate(validator.New(), map[string]any{
		"imageUrl": "not-a-url",
		"style":    "ghibli",
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "imageUrl", verr.Field)
	assert.Contains(t, verr.Error(), "imageUrl")
}

func TestValidate_NonHTTPScheme(t *testing.T) {
	e := mustEffect(t, "anime-filter")

	_, err := e.Validate(validator.New(), map[string]any{"imageUrl": "ftp://example.com/a.jpg"})
	assert.Error(t, err)
}

func TestValidate_MissingRequiredInput(t *testing.T) {
	e := mustEffect(t, "ai-kiss")

	_, err := e.Validate(validator.New(), map[string]any{"leftImageUrl": "https://example.com/a.jpg"})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "rightImageUrl", verr.Field)
}

func TestValidate_UnsupportedStyle(t *testing.T) {
	e := mustEffect(t, "anime-filter")

	_, err := e.Validate(validator.New(), map[string]any{
		"imageUrl": "https://example.com/a.jpg",
		"style":    "unsupported_style",
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "style", verr.Field)
	for _, style := range []string{"ghibli", "shinkai", "jojo", "chibi", "cyberpunk", "webtoon"} {
		assert.Contains(t, verr.Message, style)
	}
	assert.Len(t, verr.Allowed, 6)
}

func TestValidate_Defaults(t *testing.T) {
	e := mustEffect(t, "anime-filter")

	params, err := e.Validate(validator.New(), map[string]any{"imageUrl": "https://example.com/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "ghibli", params.String("style"))
	assert.Equal(t, 0.75, params.Float("strength"))
}

func TestValidate_NumericEnumAcceptsNumbers(t *testing.T) {
	e := mustEffect(t, "muscle-surge")

	params, err := e.Validate(validator.New(), map[string]any{
		"imageUrl": "https://example.com/a.jpg",
		"duration": float64(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "10", params.String("duration"))

	_, err = e.Validate(validator.New(), map[string]any{
		"imageUrl": "https://example.com/a.jpg",
		"duration": float64(7),
	})
	assert.Error(t, err)
}

func TestValidate_RangeBounds(t *testing.T) {
	e := mustEffect(t, "anime-filter")
	v := validator.New()

	_, err := e.Validate(v, map[string]any{"imageUrl": "https://example.com/a.jpg", "strength": 1.5})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "strength", verr.Field)

	_, err = e.Validate(v, map[string]any{"imageUrl": "https://example.com/a.jpg", "strength": "abc"})
	assert.Error(t, err)

	params, err := e.Validate(v, map[string]any{"imageUrl": "https://example.com/a.jpg", "strength": "0.5"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, params.Float("strength"))
}

func TestValidate_TextParam(t *testing.T) {
	e := mustEffect(t, "celebrity-selfie")
	v := validator.New()

	_, err := e.Validate(v, map[string]any{"imageUrl": "https://example.com/a.jpg"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "celebrity", verr.Field)

	long := make([]byte, 81)
	for i := range long {
		long[i] = 'a'
	}
	_, err = e.Validate(v, map[string]any{"imageUrl": "https://example.com/a.jpg", "celebrity": string(long)})
	assert.Error(t, err)

	params, err := e.Validate(v, map[string]any{"imageUrl": "https://example.com/a.jpg", "celebrity": "  Keanu Reeves "})
	require.NoError(t, err)
	assert.Equal(t, "Keanu Reeves", params.String("celebrity"))
}

func TestEndpointFor(t *testing.T) {
	e := mustEffect(t, "ai-hug")

	assert.Equal(t, "fal-ai/kling-video/v1.6/pro/elements", e.EndpointFor(Params{"quality": "pro", "duration": "5"}))
}

func TestBuildPayload(t *testing.T) {
	e := mustEffect(t, "anime-filter")
	params := Params{"style": "chibi", "strength": "0.6"}

	payload := e.BuildPayload(params, map[string]string{"imageUrl": "https://example.com/a.jpg"})
	assert.Equal(t, "https://example.com/a.jpg", payload["image_url"])
	assert.Equal(t, 0.6, payload["strength"])
	assert.Contains(t, payload["prompt"], "chibi")
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Len(t, r.All(), 8)
	assert.Equal(t, "anime-filter", r.All()[0].Name)

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownEffect)

	_, err = NewRegistry(animeFilter(), animeFilter())
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	info := mustEffect(t, "ai-kiss").Info()

	assert.Equal(t, model.MediaVideo, info.Media)
	assert.Len(t, info.Inputs, 2)
	require.Len(t, info.Options, 2)
	assert.Equal(t, []string{"5", "10"}, info.Options[0].Allowed)
}
