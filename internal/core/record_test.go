package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_JSON(t *testing.T) {
	rec := Record{
		"first_name":    TextValue("Jane"),
		"date_of_birth": DateValue(time.Date(2012, 4, 15, 0, 0, 0, 0, time.UTC)),
		"allergies":     ListValue([]string{"peanuts", "penicillin"}),
		"medications":   ListValue(nil),
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"first_name": "Jane",
		"date_of_birth": "2012-04-15",
		"allergies": ["peanuts", "penicillin"],
		"medications": []
	}`, string(data))
}

func TestRecord_Getters(t *testing.T) {
	rec := Record{
		"first_name":    TextValue("Jane"),
		"date_of_birth": DateValue(time.Date(2012, 4, 15, 0, 0, 0, 0, time.UTC)),
		"allergies":     ListValue([]string{"dust"}),
	}

	_, ok := rec.Text("date_of_birth")
	assert.False(t, ok, "Text only reads text values")
	_, ok = rec.Date("first_name")
	assert.False(t, ok)
	_, ok = rec.List("missing")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{
		"first_name":    "Jane",
		"date_of_birth": "2012-04-15",
		"allergies":     "dust",
	}, rec.Strings())
}

func TestCommitProgress_Percent(t *testing.T) {
	assert.Equal(t, 0, CommitProgress{}.Percent())
	assert.Equal(t, 100, CommitProgress{Done: true}.Percent())
	assert.Equal(t, 41, CommitProgress{Processed: 50, Total: 120}.Percent())
}
