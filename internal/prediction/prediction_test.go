package prediction

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusfix/backend/internal/models"
)

func TestHTTPSourcePredictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predictions", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"predictions":[
			{"location":"Hostel B","category":"Water","days_to_next_failure":4.5,"confidence":0.9,"message":"Pump wear"},
			{"location":"Lab 3","category":"electricity","confidence":0.4},
			{"location":"Library","category":"it","days_to_next_failure":40,"confidence":0.5}
		]}`))
	}))
	defer srv.Close()

	items, err := HTTPSource{BaseURL: srv.URL}.Predictions(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.CategoryWater, items[0].Category)
	assert.Equal(t, 4.5, items[0].DaysToNextFailure)
	assert.Equal(t, "Library", items[1].Location)
}

func TestDecodePredictionsBareArray(t *testing.T) {
	items, err := decodePredictions([]byte(`[{"location":"Gym","category":"water","days_to_next_failure":12}]`), 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Gym", items[0].Location)
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := HTTPSource{BaseURL: srv.URL}.Predictions(context.Background(), 10)
	require.Error(t, err)

	health := HTTPSource{BaseURL: srv.URL}.Health(context.Background())
	assert.False(t, health.Healthy)
	assert.Equal(t, http.StatusBadGateway, health.Status)
}

type failingSource struct{}

func (failingSource) Predictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	return nil, errors.New("scorer down")
}

type recorder struct{ saved []models.Prediction }

func (r *recorder) SavePredictions(ctx context.Context, items []models.Prediction) error {
	r.saved = append(r.saved, items...)
	return nil
}

func TestFallbackUsesSecondaryOnError(t *testing.T) {
	stored := StaticSource{Items: []models.Prediction{
		{Location: "A", Category: models.CategoryIT, DaysToNextFailure: 20},
		{Location: "B", Category: models.CategoryWater, DaysToNextFailure: 3},
	}}
	items, err := Fallback{Primary: failingSource{}, Secondary: stored}.Predictions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].Location)
}

func TestFallbackRecordsPrimaryAnswer(t *testing.T) {
	rec := &recorder{}
	primary := StaticSource{Items: []models.Prediction{{Location: "A", DaysToNextFailure: 1}}}
	_, err := Fallback{Primary: primary, Record: rec}.Predictions(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rec.saved, 1)
}
