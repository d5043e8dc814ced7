package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnStringDefaults(t *testing.T) {
	for _, k := range []string{"PGHOST", "PGPORT", "PGUSER", "PGDATABASE", "PGSSLMODE", "PGPASSWORD"} {
		t.Setenv(k, "")
	}
	assert.Equal(t, "host=127.0.0.1 port=5432 user=curaflow dbname=curaflow sslmode=disable", ConnString())
}

func TestConnStringFromEnv(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPORT", "6543")
	t.Setenv("PGUSER", "flow")
	t.Setenv("PGDATABASE", "graphs")
	t.Setenv("PGSSLMODE", "require")
	t.Setenv("PGPASSWORD", "s3cret")

	got := ConnString()
	assert.True(t, strings.HasPrefix(got, "host=db.internal port=6543 user=flow password=s3cret"))
	assert.Contains(t, got, "dbname=graphs sslmode=require")
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	if p := nullable("x"); assert.NotNil(t, p) {
		assert.Equal(t, "x", *p)
	}
}
