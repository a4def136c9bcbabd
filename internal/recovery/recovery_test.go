package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecoverLiteralScenario(t *testing.T) {
	query := "SELECT f.title, f.release_year FROM film f WHERE f.title = 'Jurasic Park'"

	t.Run("Stored casing", func(t *testing.T) {
		helper := New(staticSource{"film.title": {"Jaws", "Jurassic Park"}}, Options{})
		result := helper.Recover(context.Background(), query, "0 rows returned")

		assert.Contains(t, result.RewrittenQuery, "'Jurassic Park'")
		require.Contains(t, result.Suggestions, "film.title")
		s := result.Suggestions["film.title"]
		assert.Equal(t, "Jurasic Park", s.Original)
		assert.Equal(t, "WHERE f.title = 'Jurasic Park'", s.Context)
		assert.Equal(t, "Jurassic Park", s.Matches[0].Value)
		assert.Equal(t, "0 rows returned", result.ErrorMessage)
	})

	t.Run("Upper-case universe with literal casing", func(t *testing.T) {
		helper := New(staticSource{"film.title": {"JURASSIC PARK"}}, Options{CasePolicy: CasePolicyLiteral})
		result := helper.Recover(context.Background(), query, "")

		assert.Equal(t, "SELECT f.title, f.release_year FROM film f WHERE f.title = 'Jurassic Park'", result.RewrittenQuery)
		assert.Equal(t, "Jurasic Park", result.Suggestions["film.title"].Original)
		assert.Equal(t, "JURASSIC PARK", result.Suggestions["film.title"].Matches[0].Value)
	})
}

func TestRecoverWildcardScenario(t *testing.T) {
	helper := New(staticSource{"film.title": {"STAR WARS"}}, Options{CasePolicy: CasePolicyLiteral})
	result := helper.Recover(context.Background(), "SELECT * FROM film f WHERE f.title LIKE '%Star Warz%'", "no rows")

	assert.Equal(t, "SELECT * FROM film f WHERE f.title LIKE '%Star Wars%'", result.RewrittenQuery)
	assert.Equal(t, Like, result.Suggestions["film.title"].Form)
}

func TestRecoverCategoryScenario(t *testing.T) {
	helper := New(staticSource{"category.name": {"SCIENCE FICTION", "SCI-FI", "ANIMATION"}}, Options{})
	result := helper.Recover(context.Background(), "SELECT * FROM category WHERE name = 'Sience Fiction'", "")

	require.Contains(t, result.Suggestions, "category.name")
	assert.Equal(t, "SCIENCE FICTION", result.Suggestions["category.name"].Matches[0].Value)
	assert.Equal(t, "SELECT * FROM category WHERE name = 'SCIENCE FICTION'", result.RewrittenQuery)
}

func TestRecoverWithoutLiteralsIsIdentity(t *testing.T) {
	source := &mockValueSource{}
	helper := New(source, Options{})

	for _, query := range []string{
		"SELECT COUNT(*) FROM film",
		"SELECT * FROM payment WHERE amount > 5",
		"",
	} {
		result := helper.Recover(context.Background(), query, "boom")
		assert.Equal(t, query, result.RewrittenQuery)
		assert.Empty(t, result.Suggestions)
		assert.False(t, result.Recovered())
	}
	source.AssertNotCalled(t, "DistinctValues", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecoverSkipsFailedAndEmptyColumns(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	source := &mockValueSource{}
	source.On("DistinctValues", mock.Anything, "film", "title").Return(nil, errors.New("timeout")).Once()
	source.On("DistinctValues", mock.Anything, "customer", "first_name").Return([]string{}, nil).Once()
	source.On("DistinctValues", mock.Anything, "category", "name").Return([]string{"Horror", "Comedy"}, nil).Once()

	helper := New(source, Options{Logger: zap.New(core)})
	query := "SELECT * FROM film f, customer c, category k WHERE f.title = 'Alien' AND c.first_name = 'Mary' AND k.name = 'Horor'"
	result := helper.Recover(context.Background(), query, "")

	assert.Len(t, result.Suggestions, 1)
	assert.Contains(t, result.Suggestions, "category.name")
	assert.Equal(t, "SELECT * FROM film f, customer c, category k WHERE f.title = 'Alien' AND c.first_name = 'Mary' AND k.name = 'Horror'", result.RewrittenQuery)
	source.AssertExpectations(t)

	assert.Equal(t, 1, logs.FilterMessage("failed to fetch column values").Len())
	assert.Equal(t, 2, logs.FilterMessage("skipping literal").Len())
	assert.Equal(t, 1, logs.FilterMessage("literal corrected").Len())
}

func TestRecoverNoCandidateAboveThreshold(t *testing.T) {
	threshold := 90
	helper := New(staticSource{"film.title": {"Academy Dinosaur"}}, Options{Threshold: &threshold})
	query := "SELECT * FROM film WHERE title = 'Zorro'"
	result := helper.Recover(context.Background(), query, "")

	assert.Equal(t, query, result.RewrittenQuery)
	assert.Empty(t, result.Suggestions)
}

func TestRecoverZeroThresholdKeepsWeakCandidates(t *testing.T) {
	threshold := 0
	helper := New(staticSource{"film.title": {"Academy Dinosaur"}}, Options{Threshold: &threshold})
	result := helper.Recover(context.Background(), "SELECT * FROM film WHERE title = 'Zorro'", "")

	require.Contains(t, result.Suggestions, "film.title")
	assert.Equal(t, []MatchCandidate{{Value: "Academy Dinosaur", Score: 40}}, result.Suggestions["film.title"].Matches)
	assert.Equal(t, "SELECT * FROM film WHERE title = 'Academy Dinosaur'", result.RewrittenQuery)
}

func TestRecoverDefaultThreshold(t *testing.T) {
	helper := New(staticSource{"film.title": {"Academy Dinosaur"}}, Options{})
	result := helper.Recover(context.Background(), "SELECT * FROM film WHERE title = 'Zorro'", "")

	assert.Empty(t, result.Suggestions)
}

func TestRecoverUsesCache(t *testing.T) {
	source := &mockValueSource{}
	source.On("DistinctValues", mock.Anything, "film", "title").Return([]string{"Alien"}, nil).Once()
	helper := New(source, Options{})

	helper.Recover(context.Background(), "SELECT * FROM film WHERE title = 'Alein'", "")
	helper.Recover(context.Background(), "SELECT * FROM film WHERE title LIKE '%Alein%'", "")

	source.AssertNumberOfCalls(t, "DistinctValues", 1)
	assert.Equal(t, 1, helper.Cache().Len())
}

func TestRecoverSpanSafety(t *testing.T) {
	// the same text constrains two columns; only the title is misspelt
	source := staticSource{
		"film.title":    {"Drama Queen"},
		"category.name": {"Drama", "Comedy"},
	}
	helper := New(source, Options{})
	query := "SELECT * FROM film f JOIN category c ON true WHERE c.name = 'Drama' AND f.title = 'Drama Quen'"
	result := helper.Recover(context.Background(), query, "")

	assert.Equal(t, "SELECT * FROM film f JOIN category c ON true WHERE c.name = 'Drama' AND f.title = 'Drama Queen'", result.RewrittenQuery)
}

func TestRecoverRepeatedColumn(t *testing.T) {
	helper := New(staticSource{"film.title": {"Alien", "Jaws"}}, Options{})
	query := "SELECT * FROM film WHERE title = 'Alein' OR title = 'Jawz'"
	result := helper.Recover(context.Background(), query, "")

	assert.Equal(t, "SELECT * FROM film WHERE title = 'Alien' OR title = 'Jaws'", result.RewrittenQuery)
	// the map keeps the last literal seen for the column
	assert.Equal(t, "Jawz", result.Suggestions["film.title"].Original)
	assert.Len(t, result.Ordered(), 2)
}

func TestRecoverCustomRules(t *testing.T) {
	helper := New(staticSource{"actor.last_name": {"GUINESS", "WOOD"}}, Options{Rules: ColumnRules("actor", "last_name")})
	result := helper.Recover(context.Background(), "SELECT * FROM actor WHERE last_name = 'GUINES'", "")

	assert.Equal(t, "SELECT * FROM actor WHERE last_name = 'GUINESS'", result.RewrittenQuery)
}

func TestHelperRewriteRank(t *testing.T) {
	helper := New(staticSource{"film.title": {"Alien", "Aliens", "Alien Center"}}, Options{})
	query := "SELECT * FROM film WHERE title = 'Alein'"
	result := helper.Recover(context.Background(), query, "")

	require.GreaterOrEqual(t, result.Ranks(), 2)
	assert.Equal(t, result.RewrittenQuery, helper.RewriteRank(query, result, 0))
	assert.NotEqual(t, result.RewrittenQuery, helper.RewriteRank(query, result, 1))
}

func TestResultJSON(t *testing.T) {
	helper := New(staticSource{"film.title": {"Jurassic Park"}}, Options{})
	result := helper.Recover(context.Background(), "SELECT * FROM film WHERE title = 'Jurasic Park'", "no rows")

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "SELECT * FROM film WHERE title = 'Jurassic Park'", decoded["rewritten_query"])
	assert.Equal(t, "no rows", decoded["error"])

	suggestion := decoded["suggestions"].(map[string]interface{})["film.title"].(map[string]interface{})
	assert.Equal(t, "film", suggestion["table"])
	assert.Equal(t, "title", suggestion["column"])
	assert.Equal(t, "Jurasic Park", suggestion["original"])
	match := suggestion["matches"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Jurassic Park", match["value"])
	assert.EqualValues(t, 96, match["score"])
}

func TestFormatResultAsText(t *testing.T) {
	assert.Equal(t, "No recoverable literals found.\n", FormatResultAsText(nil))
	assert.Equal(t, "No recoverable literals found.\n", FormatResultAsText(&Result{}))

	helper := New(staticSource{"film.title": {"Jurassic Park"}}, Options{})
	text := FormatResultAsText(helper.Recover(context.Background(), "SELECT * FROM film WHERE title = 'Jurasic Park'", ""))

	assert.Contains(t, text, "--- Rewritten query ---\nSELECT * FROM film WHERE title = 'Jurassic Park'\n")
	assert.Contains(t, text, "  Column: film.title\n")
	assert.Contains(t, text, "  Original: 'Jurasic Park'\n")
	assert.Contains(t, text, "    1. Jurassic Park (96)\n")
}
