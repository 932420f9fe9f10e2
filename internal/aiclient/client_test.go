package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/recipebox/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aiServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestImportRecipe_Success(t *testing.T) {
	ts := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/import-recipe", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com/pancakes", body["url"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Pancakes","description":"Fluffy","ingredients":"flour","instructions":"mix",
			"imageUrl":"https://example.com/p.jpg","tags":["breakfast"],"cookTime":"Pending...","difficulty":"Undetermined"}`))
	})

	c := NewHTTPClient(ts.URL, 5*time.Second)
	recipe, err := c.ImportRecipe(context.Background(), "https://example.com/pancakes")
	require.NoError(t, err)
	assert.Equal(t, "Pancakes", recipe.Title)
	assert.Equal(t, []string{"breakfast"}, recipe.Tags)
	assert.Equal(t, "Pending...", recipe.CookTime)
}

func TestImportRecipe_MissingTitleIsInvalid(t *testing.T) {
	ts := aiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"description":"no title here"}`))
	})

	_, err := NewHTTPClient(ts.URL, 5*time.Second).ImportRecipe(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestImportRecipe_MalformedJSON(t *testing.T) {
	ts := aiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"title":`))
	})

	_, err := NewHTTPClient(ts.URL, 5*time.Second).ImportRecipe(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestImportRecipe_UpstreamErrorCarriesStatusAndDetail(t *testing.T) {
	ts := aiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"Model not loaded"}`))
	})

	_, err := NewHTTPClient(ts.URL, 5*time.Second).ImportRecipe(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamStatus)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.JSONEq(t, `{"detail":"Model not loaded"}`, string(upErr.Body))
	assert.Equal(t, "ai service returned status 503: Model not loaded", err.Error())
}

func TestImportRecipe_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewHTTPClient(url, 2*time.Second).ImportRecipe(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestImportRecipe_Timeout(t *testing.T) {
	ts := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	_, err := NewHTTPClient(ts.URL, 100*time.Millisecond).ImportRecipe(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAnalyzeRecipe_Success(t *testing.T) {
	ts := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze-recipe", r.URL.Path)

		var req models.AnalysisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Soup", req.Title)
		assert.Equal(t, "", req.Description)

		_, _ = w.Write([]byte(`{"estimatedTime":"45","difficulty":"Medium","timeReasoning":"simmer","difficultyReasoning":"knife work"}`))
	})

	analysis, err := NewHTTPClient(ts.URL, 5*time.Second).AnalyzeRecipe(context.Background(), models.AnalysisRequest{
		Title: "Soup", Ingredients: "water", Instructions: "boil",
	})
	require.NoError(t, err)
	assert.Equal(t, "45", *analysis.EstimatedTime)
	assert.Equal(t, "Medium", *analysis.Difficulty)
	assert.Equal(t, "simmer", analysis.TimeReasoning)
	assert.Nil(t, analysis.Description)
}

func TestAnalyzeRecipe_MissingFieldsIsInvalid(t *testing.T) {
	ts := aiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"estimatedTime":"45"}`))
	})

	_, err := NewHTTPClient(ts.URL, 5*time.Second).AnalyzeRecipe(context.Background(), models.AnalysisRequest{Title: "Soup"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestAutoCategoryAndChat(t *testing.T) {
	ts := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auto-category":
			_, _ = w.Write([]byte(`{"categories":["POSITIVE"]}`))
		case "/chat":
			_, _ = w.Write([]byte(`{"answer":"Use butter.","recipes":[{"id":1}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := NewHTTPClient(ts.URL, 5*time.Second)

	cats, err := c.AutoCategory(context.Background(), models.CategoryRequest{Title: "Cake"})
	require.NoError(t, err)
	assert.Equal(t, []string{"POSITIVE"}, cats)

	chat, err := c.Chat(context.Background(), "What fat?")
	require.NoError(t, err)
	assert.Equal(t, "Use butter.", chat.Answer)
	assert.Len(t, chat.Recipes, 1)
}

func TestHealth(t *testing.T) {
	healthy := aiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	assert.NoError(t, NewHTTPClient(healthy.URL, time.Second).Health(context.Background()))

	sick := aiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.ErrorIs(t, NewHTTPClient(sick.URL, time.Second).Health(context.Background()), ErrServiceUnavailable)
}

func TestCircuitBreaker_OpensAfterConsecutiveServerErrors(t *testing.T) {
	var hits atomic.Int32
	ts := aiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := NewHTTPClient(ts.URL, 5*time.Second)

	for range 5 {
		_, err := c.ImportRecipe(context.Background(), "https://example.com")
		assert.ErrorIs(t, err, ErrUpstreamStatus)
	}

	_, err := c.ImportRecipe(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, int32(5), hits.Load(), "open circuit must not reach the server")
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	var hits atomic.Int32
	ts := aiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"No text provided for category prediction."}`))
	})
	c := NewHTTPClient(ts.URL, 5*time.Second)

	for range 8 {
		_, err := c.AutoCategory(context.Background(), models.CategoryRequest{})
		assert.ErrorIs(t, err, ErrUpstreamStatus)
	}
	assert.Equal(t, int32(8), hits.Load())
}
